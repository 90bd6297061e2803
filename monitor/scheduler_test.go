package monitor

import (
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagewatch/snapshot"
)

func TestStartStop(t *testing.T) {
	// WHAT: Start schedules all sites and Stop shuts down cleanly; a second
	// Start fails while running and works again after Stop.
	// WHY: main wires Start/Stop to process lifecycle; double starts would
	// run duplicate cycles.
	svc := newTestService(t, singleSiteConfig("https://example.com"), &capturingNotifier{})
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(); err == nil {
		t.Error("second start accepted while running")
	}
	svc.Stop()
	if err := svc.Start(); err != nil {
		t.Errorf("restart after stop: %v", err)
	}
	svc.Stop()
}

func TestScheduledCheck_SkipsFailingSite(t *testing.T) {
	// WHAT: Once a site reaches MaxFailCount consecutive failures, the
	// scheduler stops checking it.
	// WHY: A dead site should not burn a fetch every tick forever; manual
	// checks still work and reset the count on success.
	page := &pageServer{}
	page.fail(500)
	srv := httptest.NewServer(page)
	defer srv.Close()

	cfg := singleSiteConfig(srv.URL)
	cfg.MaxFailCount = 2
	svc := newTestService(t, cfg, &capturingNotifier{})
	site := svc.Site("site")

	svc.scheduledCheck(site)
	svc.scheduledCheck(site)
	if svc.FailCount("site") != 2 {
		t.Fatalf("fail count = %d, want 2", svc.FailCount("site"))
	}

	// At the cap: the next scheduled run is skipped, count stays put.
	svc.scheduledCheck(site)
	if svc.FailCount("site") != 2 {
		t.Errorf("skipped run changed fail count: %d", svc.FailCount("site"))
	}

	// A manual check bypasses the skip and resets the count on success.
	page.set("<html><body><p>Back online with content.</p></body></html>")
	res, err := svc.CheckSite(t.Context(), "site")
	if err != nil {
		t.Fatalf("manual check: %v", err)
	}
	if res.Status != snapshot.StatusBaseline {
		t.Errorf("status = %q", res.Status)
	}
	if svc.FailCount("site") != 0 {
		t.Errorf("fail count not reset: %d", svc.FailCount("site"))
	}
}
