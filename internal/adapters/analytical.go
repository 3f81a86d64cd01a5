package adapters

import "github.com/JonMunkholm/labingest/internal/core"

func init() {
	registerCESDS()
	registerGlycan()
	registerMassCheck()
}

func registerCESDS() {
	p := &Delimited{
		Table:   "cesds_peaks",
		Key:     []string{"Sample Name", "Injection Date", "Peak Name"},
		SkipRow: isSummaryRow("Peak Name"),
		Fields: []core.FieldSpec{
			{Name: "Sample Name", Aliases: []string{"Sample"}, DBColumn: "sample_id", Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Injection Date", Aliases: []string{"Acquired Date", "Injection Time"}, DBColumn: "injection_time", Type: core.FieldTimestamp, Required: true},
			{Name: "Peak Name", Aliases: []string{"Peak", "Name"}, Type: core.FieldText, Required: true},
			{Name: "Condition", Type: core.FieldEnum, EnumValues: []string{"Reduced", "Non-Reduced"}},
			{Name: "Migration Time", Aliases: []string{"MT (min)"}, DBColumn: "migration_time_min", Type: core.FieldNumeric},
			{Name: "Corr. Area", Aliases: []string{"Corrected Area"}, DBColumn: "corrected_area", Type: core.FieldNumeric},
			{Name: "Corr. Area %", Aliases: []string{"Corr. Area Percent", "% Corr. Area"}, DBColumn: "corrected_area_pct", Type: core.FieldNumeric, Required: true},
		},
	}

	// Second-channel and in-progress exports duplicate the primary channel.
	core.Register(p.Definition(core.AdapterInfo{
		Key:   "cesds",
		Group: "Analytical",
		Label: "CE-SDS Purity",
	}, []string{".csv", ".txt"}, []string{"_ch2", "_current"}))
}

func registerGlycan() {
	p := &Delimited{
		Table:   "glycan_peaks",
		Key:     []string{"Sample Name", "Glycan"},
		SkipRow: isSummaryRow("Glycan"),
		Fields: []core.FieldSpec{
			{Name: "Sample Name", Aliases: []string{"Sample"}, DBColumn: "sample_id", Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Glycan", Aliases: []string{"Peak Name", "Component"}, Type: core.FieldText, Required: true, Normalizer: NormalizeGlycanName},
			{Name: "Injection Date", Aliases: []string{"Acquired Date"}, DBColumn: "injection_time", Type: core.FieldTimestamp},
			{Name: "RT (min)", Aliases: []string{"Retention Time"}, DBColumn: "retention_time_min", Type: core.FieldNumeric},
			{Name: "Area", Type: core.FieldNumeric},
			{Name: "Rel. Area (%)", Aliases: []string{"Relative Area", "% Area"}, DBColumn: "relative_area_pct", Type: core.FieldNumeric, Required: true},
		},
	}

	core.Register(p.Definition(core.AdapterInfo{
		Key:   "glycan",
		Group: "Analytical",
		Label: "Glycan Profile",
	}, []string{".csv"}, nil))
}

func registerMassCheck() {
	p := &Delimited{
		Table: "masscheck_results",
		Key:   []string{"Sample", "Acquired"},
		Fields: []core.FieldSpec{
			{Name: "Sample", Aliases: []string{"Sample Name"}, DBColumn: "sample_id", Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Acquired", Aliases: []string{"Acquisition Date"}, DBColumn: "acquired_at", Type: core.FieldTimestamp, Required: true},
			{Name: "Chain", Type: core.FieldEnum, EnumValues: []string{"Intact", "HC", "LC"}},
			{Name: "Expected Mass (Da)", Aliases: []string{"Theoretical Mass"}, DBColumn: "expected_mass_da", Type: core.FieldNumeric, Required: true},
			{Name: "Observed Mass (Da)", Aliases: []string{"Measured Mass"}, DBColumn: "observed_mass_da", Type: core.FieldNumeric, Required: true},
			{Name: "Delta (ppm)", Aliases: []string{"Error (ppm)"}, DBColumn: "delta_ppm", Type: core.FieldNumeric},
			{Name: "Result", Aliases: []string{"Pass/Fail"}, DBColumn: "passed", Type: core.FieldBool},
		},
	}

	core.Register(p.Definition(core.AdapterInfo{
		Key:   "masscheck",
		Group: "Analytical",
		Label: "Intact Mass Check",
	}, []string{".csv"}, nil))
}
