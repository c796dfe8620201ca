package knowledge

import "testing"

func TestGetStandardKnown(t *testing.T) {
	kb := NewKnowledgeBase()

	std, err := kb.GetStandard("TS 29.274")
	if err != nil {
		t.Fatalf("GetStandard returned error: %v", err)
	}
	if std.Organization != "3GPP" {
		t.Errorf("Organization = %q, want 3GPP", std.Organization)
	}
}

func TestGetStandardUnknown(t *testing.T) {
	kb := NewKnowledgeBase()

	if _, err := kb.GetStandard("TS 00.000"); err == nil {
		t.Error("GetStandard on an unknown id returned no error")
	}
}

func TestGetErrorCodeKnownProtocolsAndCodes(t *testing.T) {
	kb := NewKnowledgeBase()

	cases := []struct {
		protocol string
		code     int
	}{
		{"Diameter", 5001},
		{"Diameter", 5004},
		{"Diameter", 5012},
		{"Diameter", 4181},
		{"GTP", 64},
		{"GTP", 67},
		{"GTP", 73},
		{"GTP", 91},
		{"MAP", 1},
		{"MAP", 34},
		{"NAS", 11},
	}

	for _, c := range cases {
		ref, err := kb.GetErrorCode(c.protocol, c.code)
		if err != nil {
			t.Errorf("GetErrorCode(%s, %d) returned error: %v", c.protocol, c.code, err)
			continue
		}
		if ref.Name == "" {
			t.Errorf("GetErrorCode(%s, %d) returned empty Name", c.protocol, c.code)
		}
	}
}

func TestGetErrorCodeNoResourcesAliasesMatch(t *testing.T) {
	kb := NewKnowledgeBase()

	a, err := kb.GetErrorCode("GTP", 73)
	if err != nil {
		t.Fatalf("GetErrorCode(GTP, 73) returned error: %v", err)
	}
	b, err := kb.GetErrorCode("GTP", 91)
	if err != nil {
		t.Fatalf("GetErrorCode(GTP, 91) returned error: %v", err)
	}
	if a.Name != b.Name || a.Severity != b.Severity {
		t.Errorf("GTP causes 73 and 91 should describe the same no-resources condition, got %+v vs %+v", a, b)
	}
}

func TestGetErrorCodeUnknownProtocol(t *testing.T) {
	kb := NewKnowledgeBase()

	if _, err := kb.GetErrorCode("SMTP", 1); err == nil {
		t.Error("GetErrorCode on an unknown protocol returned no error")
	}
}

func TestGetErrorCodeUnknownCode(t *testing.T) {
	kb := NewKnowledgeBase()

	if _, err := kb.GetErrorCode("Diameter", 99999); err == nil {
		t.Error("GetErrorCode on an unknown code returned no error")
	}
}

func TestGetProceduresByProtocol(t *testing.T) {
	kb := NewKnowledgeBase()

	procs := kb.GetProceduresByProtocol("S6a")
	if len(procs) == 0 {
		t.Fatal("GetProceduresByProtocol(S6a) returned no procedures")
	}
	for _, p := range procs {
		if p.Protocol != "S6a" {
			t.Errorf("GetProceduresByProtocol(S6a) returned procedure for %q", p.Protocol)
		}
	}
}

func TestGetProceduresByProtocolUnknown(t *testing.T) {
	kb := NewKnowledgeBase()

	if procs := kb.GetProceduresByProtocol("NoSuchProtocol"); len(procs) != 0 {
		t.Errorf("GetProceduresByProtocol(unknown) = %d entries, want 0", len(procs))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	kb := NewKnowledgeBase()

	if results := kb.Search("   "); results != nil {
		t.Errorf("Search(blank) = %v, want nil", results)
	}
}

func TestSearchIsCaseInsensitiveAndTrims(t *testing.T) {
	kb := NewKnowledgeBase()

	lower := kb.Search("diameter")
	mixed := kb.Search("  DiAmEtEr  ")
	if len(lower) == 0 {
		t.Fatal("Search(diameter) returned no results")
	}
	if len(mixed) != len(lower) {
		t.Errorf("Search is not case/whitespace insensitive: %d vs %d results", len(mixed), len(lower))
	}
}

func TestSearchPartialMatch(t *testing.T) {
	kb := NewKnowledgeBase()

	if results := kb.Search("gtp"); len(results) == 0 {
		t.Error("Search(gtp) returned no results, want partial matches across the GTP entries")
	}
}

func TestListAllStandardsNonEmpty(t *testing.T) {
	kb := NewKnowledgeBase()

	standards := kb.ListAllStandards()
	if len(standards) == 0 {
		t.Fatal("ListAllStandards returned no standards")
	}
	seen := make(map[string]bool)
	for _, s := range standards {
		seen[s.ID] = true
	}
	if !seen["TS 29.002"] || !seen["RFC 6733"] {
		t.Error("ListAllStandards missing expected 3GPP/IETF entries")
	}
}

func TestListAllProtocolsIncludesS6a(t *testing.T) {
	kb := NewKnowledgeBase()

	found := false
	for _, p := range kb.ListAllProtocols() {
		if p == "S6a" {
			found = true
		}
	}
	if !found {
		t.Error("ListAllProtocols does not include S6a")
	}
}
