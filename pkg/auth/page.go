package auth

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/session"
)

// page is the slice of browser behavior the login flow needs. The rod
// implementation lives below; tests substitute a scripted one.
type page interface {
	// ApplyCookies installs a session's cookies before navigation.
	ApplyCookies(sess *session.Session) error
	// Navigate opens a URL.
	Navigate(url string) error
	// WaitLoad waits for the page load event.
	WaitLoad() error
	// Fill types a value into the element the selector addresses.
	Fill(selector, value string) error
	// Click activates the element the selector addresses.
	Click(selector string) error
	// HTML returns the current rendered document.
	HTML() (string, error)
	// Cookies reads the page's cookie jar.
	Cookies() ([]session.Cookie, error)
	// Close releases the page.
	Close()
}

type rodPage struct {
	page *rod.Page
}

// rodPageFactory builds pages bound to the shared browser manager.
func rodPageFactory(b *browser.Manager) func(ctx context.Context) (page, error) {
	return func(ctx context.Context) (page, error) {
		p, err := b.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		return &rodPage{page: p}, nil
	}
}

func (p *rodPage) ApplyCookies(sess *session.Session) error {
	return browser.ApplyCookies(p.page, sess)
}

func (p *rodPage) Navigate(url string) error { return p.page.Navigate(url) }

func (p *rodPage) WaitLoad() error { return p.page.WaitLoad() }

func (p *rodPage) Fill(selector, value string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

func (p *rodPage) Click(selector string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) HTML() (string, error) { return p.page.HTML() }

func (p *rodPage) Cookies() ([]session.Cookie, error) {
	return browser.HarvestCookies(p.page)
}

func (p *rodPage) Close() { p.page.Close() }
