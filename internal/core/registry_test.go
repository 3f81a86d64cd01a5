package core

import "testing"

func testDef(key, group string) AdapterDefinition {
	return AdapterDefinition{
		Info:    AdapterInfo{Key: key, Group: group, Label: key, Table: key + "_rows"},
		Adapter: AdapterFunc(func([]byte) ([]NormalizedRecord, error) { return nil, nil }),
	}
}

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(testDef("vicell", "Cell Culture"))
	Register(testDef("cesds", "Analytical"))
	Register(testDef("novaflex", "Cell Culture"))

	if got := AdapterCount(); got != 3 {
		t.Errorf("AdapterCount() = %d, want 3", got)
	}

	if _, ok := Get("cesds"); !ok {
		t.Error("Get(cesds) not found")
	}
	if _, ok := Get("missing"); ok {
		t.Error("Get(missing) found")
	}

	all := All()
	order := []string{"cesds", "novaflex", "vicell"}
	for i, key := range order {
		if all[i].Info.Key != key {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].Info.Key, key)
		}
	}

	if got := ByGroup("Cell Culture"); len(got) != 2 || got[0].Info.Key != "novaflex" {
		t.Errorf("ByGroup(Cell Culture) = %v", got)
	}

	groups := Groups()
	if len(groups) != 2 || groups[0] != "Analytical" || groups[1] != "Cell Culture" {
		t.Errorf("Groups() = %v", groups)
	}
}

func TestRegister_Panics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)
	Register(testDef("vicell", "Cell Culture"))

	tests := []struct {
		name string
		def  AdapterDefinition
	}{
		{"duplicate key", testDef("vicell", "Cell Culture")},
		{"empty key", testDef("", "Cell Culture")},
		{"nil adapter", AdapterDefinition{Info: AdapterInfo{Key: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register() did not panic")
				}
			}()
			Register(tt.def)
		})
	}
}
