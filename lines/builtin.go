package lines

// Tags used by the built-in table.
const (
	TagLamp       = "lamp"
	TagSolar      = "solar"
	TagBalmer     = "balmer"
	TagFraunhofer = "fraunhofer"
)

type builtinSpecies struct {
	species string
	tags    []string
	nm      []float64
}

// Air wavelengths in nm of bright lines commonly seen with discharge lamps,
// flames and sunlight in the visible and near infrared.
var builtinTable = []builtinSpecies{
	{species: "H I", tags: []string{TagBalmer, TagSolar, TagLamp}, nm: []float64{410.174, 434.047, 486.135, 656.279}},
	{species: "He I", tags: []string{TagLamp}, nm: []float64{447.148, 471.314, 492.193, 501.568, 587.562, 667.815, 706.519}},
	{species: "Hg I", tags: []string{TagLamp}, nm: []float64{404.656, 407.783, 435.833, 546.074, 576.960, 579.066}},
	{species: "Na I", tags: []string{TagLamp, TagFraunhofer}, nm: []float64{588.995, 589.592}},
	{species: "Ne I", tags: []string{TagLamp}, nm: []float64{585.249, 588.190, 594.483, 614.306, 626.650, 640.225, 650.653, 659.895, 692.947, 703.241}},
	{species: "Ar I", tags: []string{TagLamp}, nm: []float64{696.543, 706.722, 738.398, 750.387, 763.511, 772.376, 794.818, 811.531}},
	{species: "Ca II", tags: []string{TagFraunhofer, TagSolar}, nm: []float64{393.366, 396.847}},
	{species: "Fe I", tags: []string{TagFraunhofer, TagSolar}, nm: []float64{438.355, 495.761, 527.039}},
	{species: "Mg I", tags: []string{TagFraunhofer, TagSolar}, nm: []float64{516.733, 517.268, 518.362}},
	{species: "K I", tags: []string{TagLamp}, nm: []float64{766.490, 769.896}},
	{species: "Li I", tags: []string{TagLamp}, nm: []float64{670.776}},
	{species: "O I", tags: []string{TagSolar}, nm: []float64{777.194, 844.636}},
}

// Builtin returns the built-in reference table in table order. The result is
// a fresh slice on every call.
func Builtin() []Line {
	var out []Line

	for _, s := range builtinTable {
		for _, nm := range s.nm {
			l, err := Line{Species: s.species, Nm: nm, Tags: s.tags}.normalize()
			if err != nil {
				panic(err)
			}

			out = append(out, l)
		}
	}

	return out
}

// BuiltinLibrary returns a Library over [Builtin].
func BuiltinLibrary() *Library {
	lib, err := NewLibrary(Builtin())
	if err != nil {
		panic(err)
	}

	return lib
}
