package scrape

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/session"
)

// rodDriver is the production driver: one stealth page carrying the
// authenticated cookie bundle.
type rodDriver struct {
	page *rod.Page
	cfg  Config
}

// rodDriverFactory builds drivers bound to the shared browser manager.
func rodDriverFactory(b *browser.Manager, cfg Config) func(ctx context.Context, sess *session.Session) (driver, error) {
	return func(ctx context.Context, sess *session.Session) (driver, error) {
		page, err := b.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		if err := browser.ApplyCookies(page, sess); err != nil {
			page.Close()
			return nil, err
		}
		return &rodDriver{page: page, cfg: cfg}, nil
	}
}

func (d *rodDriver) Load(url string) error {
	if err := d.page.Navigate(url); err != nil {
		return err
	}
	return d.awaitContent()
}

func (d *rodDriver) HTML() (string, error) {
	return d.page.HTML()
}

func (d *rodDriver) URL() string {
	info, err := d.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (d *rodDriver) ClickNext() error {
	el, err := d.page.ElementR("a", d.cfg.NextText)
	if err != nil {
		return fmt.Errorf("next control not found: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click next: %w", err)
	}
	return d.awaitContent()
}

// Screenshot is best effort; the HTML capture is the primary evidence.
func (d *rodDriver) Screenshot() []byte {
	shot, err := d.page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil
	}
	return shot
}

func (d *rodDriver) Close() {
	d.page.Close()
}

// awaitContent waits for the page load event, then gives lazily rendered
// cards a bounded settle window. An empty page after the window is not an
// error; it is the structural empty-list signal.
func (d *rodDriver) awaitContent() error {
	if err := d.page.WaitLoad(); err != nil {
		return err
	}
	settled := d.page.Timeout(d.cfg.SettleWait)
	if _, err := settled.Element(d.cfg.CardSelector); err != nil {
		// No cards is a valid empty page; the extractor sees zero records.
		return nil
	}
	return nil
}
