package adapters

import "github.com/JonMunkholm/labingest/internal/core"

func init() {
	registerViCell()
	registerNovaFlex()
}

func registerViCell() {
	p := &Delimited{
		Table: "vicell_counts",
		Key:   []string{"Sample ID", "Analysis date/time"},
		Fields: []core.FieldSpec{
			{Name: "Sample ID", Aliases: []string{"Sample"}, Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Analysis date/time", Aliases: []string{"RunDate", "Date/Time"}, DBColumn: "analysis_time", Type: core.FieldTimestamp, Required: true},
			{Name: "Cell type", Aliases: []string{"Cell Type"}, Type: core.FieldText},
			{Name: "Total (x10^6) cells/mL", Aliases: []string{"Total cells/ml (x10^6)"}, DBColumn: "total_cells_per_ml", Type: core.FieldNumeric, Required: true},
			{Name: "Viable (x10^6) cells/mL", Aliases: []string{"Viable cells/ml (x10^6)"}, DBColumn: "viable_cells_per_ml", Type: core.FieldNumeric, Required: true},
			{Name: "Viability (%)", Aliases: []string{"Viability"}, DBColumn: "viability_pct", Type: core.FieldNumeric, Required: true},
			{Name: "Average diameter (μm)", Aliases: []string{"Avg. diam. (microns)"}, DBColumn: "avg_diameter_um", Type: core.FieldNumeric},
			{Name: "Cell count", Aliases: []string{"Total cells"}, DBColumn: "cell_count", Type: core.FieldNumeric},
			{Name: "Images", DBColumn: "image_count", Type: core.FieldNumeric},
		},
	}

	core.Register(p.Definition(core.AdapterInfo{
		Key:   "vicell",
		Group: "Cell Culture",
		Label: "Vi-Cell Counts",
	}, []string{".csv", ".txt"}, nil))
}

func registerNovaFlex() {
	p := &Delimited{
		Table: "novaflex_chemistry",
		Key:   []string{"Sample ID", "Sample Date/Time"},
		Fields: []core.FieldSpec{
			{Name: "Sample ID", Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Sample Date/Time", Aliases: []string{"Date/Time", "Sample Time"}, DBColumn: "sample_time", Type: core.FieldTimestamp, Required: true},
			{Name: "Sample Type", Type: core.FieldEnum, EnumValues: []string{"Bioreactor", "Media", "QC", "Control"}},
			{Name: "Gln", DBColumn: "glutamine_mmol", Type: core.FieldNumeric},
			{Name: "Glu", DBColumn: "glutamate_mmol", Type: core.FieldNumeric},
			{Name: "Gluc", DBColumn: "glucose_gl", Type: core.FieldNumeric},
			{Name: "Lac", DBColumn: "lactate_gl", Type: core.FieldNumeric},
			{Name: "NH4+", DBColumn: "ammonium_mmol", Type: core.FieldNumeric},
			{Name: "Na+", DBColumn: "sodium_mmol", Type: core.FieldNumeric},
			{Name: "K+", DBColumn: "potassium_mmol", Type: core.FieldNumeric},
			{Name: "Ca++", DBColumn: "calcium_mmol", Type: core.FieldNumeric},
			{Name: "pH", DBColumn: "ph", Type: core.FieldNumeric},
			{Name: "PO2", DBColumn: "po2_mmhg", Type: core.FieldNumeric},
			{Name: "PCO2", DBColumn: "pco2_mmhg", Type: core.FieldNumeric},
			{Name: "Osm", DBColumn: "osmolality", Type: core.FieldNumeric},
		},
	}

	core.Register(p.Definition(core.AdapterInfo{
		Key:   "novaflex",
		Group: "Cell Culture",
		Label: "Nova FLEX2 Chemistry",
	}, []string{".csv", ".txt"}, nil))
}
