package builtin

import "github.com/antigravity-dev/boa/internal/plugins"

// RegisterAll populates a registry with the full reference plugin set, under
// the canonical names specs reference in their strategies block.
func RegisterAll(r *plugins.Registry) {
	r.RegisterSampler(RandomSampler{})
	r.RegisterSampler(LHSSampler{})
	r.RegisterSampler(LHSOptimizedSampler{})
	r.RegisterSampler(SobolSampler{})
	r.RegisterSampler(GridSampler{})

	r.RegisterModel(GPMaternModel{})
	r.RegisterModel(GPRBFModel{})

	r.RegisterAcquisition(QLogNEHVIAcquisition{})
	r.RegisterAcquisition(QNEHVIAcquisition{})
	r.RegisterAcquisition(QParEGOAcquisition{})
	r.RegisterAcquisition(RandomAcquisition{})

	r.RegisterConstraint(ClausiusClapeyronConstraint{})
}
