package report

import (
	"strings"
	"testing"
	"time"

	"f0oster/adsweep/lifecycle"
)

var reportNow = time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)

func result(name, dn string, action lifecycle.Action) lifecycle.Result {
	return lifecycle.Result{
		AccountSnapshot: lifecycle.AccountSnapshot{
			Kind: lifecycle.KindComputer,
			Name: name,
			DN:   dn,
		},
		Action: action,
	}
}

func TestBuildGroupsAndSorts(t *testing.T) {
	results := []lifecycle.Result{
		result("ZETA", "CN=ZETA,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionDisable),
		result("ALPHA", "CN=ALPHA,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionDisable),
		result("OLD-01", "CN=OLD-01,OU=Retired,DC=corp,DC=example,DC=com", lifecycle.ActionRemove),
		result("FINE-01", "CN=FINE-01,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionNone),
		result("HOLD-01", "CN=HOLD-01,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionWait),
	}

	rep := Build(lifecycle.KindComputer, results, false, reportNow)

	if rep.Examined != 5 {
		t.Errorf("examined: got %d, want 5", rep.Examined)
	}
	if rep.Actionable() != 4 {
		t.Errorf("actionable: got %d, want 4", rep.Actionable())
	}

	if len(rep.Groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(rep.Groups))
	}
	wantOrder := []lifecycle.Action{lifecycle.ActionDisable, lifecycle.ActionWait, lifecycle.ActionRemove}
	for i, action := range wantOrder {
		if rep.Groups[i].Action != action {
			t.Errorf("group %d: got %s, want %s", i, rep.Groups[i].Action, action)
		}
	}

	disable := rep.Groups[0].Results
	if disable[0].Name != "ALPHA" || disable[1].Name != "ZETA" {
		t.Errorf("disable group not sorted by name: %s, %s", disable[0].Name, disable[1].Name)
	}
}

func TestBuildOUSummary(t *testing.T) {
	results := []lifecycle.Result{
		result("A", "CN=A,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionDisable),
		result("B", "CN=B,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionDisable),
		result("C", "CN=C,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionRemove),
		result("D", "CN=D,OU=Retired,DC=corp,DC=example,DC=com", lifecycle.ActionWait),
		result("E", "CN=E,OU=Retired,DC=corp,DC=example,DC=com", lifecycle.ActionNone),
	}

	rep := Build(lifecycle.KindComputer, results, false, reportNow)

	if len(rep.OUs) != 2 {
		t.Fatalf("got %d OU summaries, want 2", len(rep.OUs))
	}

	lab := rep.OUs[0]
	if lab.OU != "OU=Lab,DC=corp,DC=example,DC=com" {
		t.Errorf("unexpected first OU %q", lab.OU)
	}
	if lab.Total != 3 || lab.Disable != 2 || lab.Remove != 1 {
		t.Errorf("lab counts: %+v", lab)
	}

	retired := rep.OUs[1]
	if retired.Total != 1 || retired.Disable != 0 {
		t.Errorf("retired counts: %+v", retired)
	}
}

func TestSubject(t *testing.T) {
	results := []lifecycle.Result{
		result("A", "CN=A,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionDisable),
		result("B", "CN=B,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionNone),
		result("C", "CN=C,OU=Lab,DC=corp,DC=example,DC=com", lifecycle.ActionRemove),
	}

	rep := Build(lifecycle.KindComputer, results, false, reportNow)
	want := "Computer sweep: 3 examined, 1 to disable, 1 to remove"
	if got := rep.Subject(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	rep = Build(lifecycle.KindComputer, results, true, reportNow)
	if got := rep.Subject(); !strings.HasSuffix(got, "(dry run)") {
		t.Errorf("dry run subject missing marker: %q", got)
	}

	rep = Build(lifecycle.KindComputer, results, false, reportNow)
	rep.Failed = 2
	want = "Computer sweep: 3 examined, 1 to disable, 1 to remove, 2 failed"
	if got := rep.Subject(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHTMLRendering(t *testing.T) {
	logon := reportNow.AddDate(0, 0, -60)
	res := lifecycle.Result{
		AccountSnapshot: lifecycle.AccountSnapshot{
			Kind:          lifecycle.KindUser,
			Name:          "jdoe",
			DN:            "CN=jdoe,OU=Staff,DC=corp,DC=example,DC=com",
			Description:   "left org <script>",
			LastLogonDate: &logon,
		},
		Action: lifecycle.ActionDisable,
	}

	rep := Build(lifecycle.KindUser, []lifecycle.Result{res}, true, reportNow)

	html, err := rep.HTML()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{
		"User account sweep",
		"jdoe",
		"OU=Staff,DC=corp,DC=example,DC=com",
		"DISABLE (1)",
		"Dry run",
		"2024-03-11",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}

	if strings.Contains(html, "<script>") {
		t.Error("description was not escaped")
	}
}

func TestHTMLRenderingEmpty(t *testing.T) {
	rep := Build(lifecycle.KindComputer, nil, false, reportNow)

	html, err := rep.HTML()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, "Nothing to do") {
		t.Error("empty report missing placeholder text")
	}
}

func TestHTMLRenderingFailures(t *testing.T) {
	rep := Build(lifecycle.KindUser, nil, false, reportNow)
	rep.Failed = 3
	rep.Notices = []string{"The archive store is unreachable; 3 user removal(s) were skipped."}

	html, err := rep.HTML()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{
		"archive store is unreachable",
		"3 account action(s) failed",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestParentDN(t *testing.T) {
	tests := []struct {
		dn   string
		want string
	}{
		{"CN=PC-1,OU=Lab,DC=corp,DC=example,DC=com", "OU=Lab,DC=corp,DC=example,DC=com"},
		{`CN=Doe\, John,OU=Staff,DC=corp,DC=example,DC=com`, "OU=Staff,DC=corp,DC=example,DC=com"},
		{"CN=orphan", "CN=orphan"},
	}

	for _, test := range tests {
		if got := parentDN(test.dn); got != test.want {
			t.Errorf("parentDN(%q) = %q, want %q", test.dn, got, test.want)
		}
	}
}
