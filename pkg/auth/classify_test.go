package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

const loginPage = `
<html><body>
  <form action="/n/login" method="post">
    <input name="username" type="text">
    <input name="password" type="password">
    <input type="submit" value="Log In">
  </form>
</body></html>`

const loginRejectedPage = `
<html><body>
  <div class="alert-danger">Invalid username or password.</div>
  <form action="/n/login" method="post">
    <input name="username" type="text">
    <input name="password" type="password">
  </form>
</body></html>`

const secondFactorPage = `
<html><body>
  <form action="/n/login/verify" method="post">
    <p>Enter the code we sent to your device.</p>
    <input name="otp" type="text">
    <input name="username" type="hidden" value="x">
  </form>
</body></html>`

const listingPage = `
<html><body>
  <div class="app-card"><span class="customer"><a href="/d/1">MCA # 1</a></span></div>
</body></html>`

const marketingPage = `
<html><body><h1>Welcome</h1><p>Please sign in.</p></body></html>`

func TestClassify(t *testing.T) {
	c := NewClassifier(Markers{})

	assert.Equal(t, KindLogin, c.Classify(loginPage))
	assert.Equal(t, KindSecondFactor, c.Classify(secondFactorPage))
	assert.Equal(t, KindAuthenticated, c.Classify(listingPage))
	assert.Equal(t, KindUnknown, c.Classify(marketingPage))
}

func TestClassifySecondFactorBeatsLogin(t *testing.T) {
	// The challenge page carries a hidden username field; it must still
	// classify as second factor, not login.
	c := NewClassifier(Markers{})
	assert.Equal(t, KindSecondFactor, c.Classify(secondFactorPage))
}

func TestLoggedIn(t *testing.T) {
	c := NewClassifier(Markers{})

	assert.True(t, c.LoggedIn(listingPage))
	assert.False(t, c.LoggedIn(loginPage))
	assert.False(t, c.LoggedIn(marketingPage))
}

func TestLoginRejected(t *testing.T) {
	c := NewClassifier(Markers{})

	assert.True(t, c.LoginRejected(loginRejectedPage))
	assert.False(t, c.LoginRejected(loginPage))
	assert.False(t, c.LoginRejected(listingPage))
}

func TestClassifyCustomMarkers(t *testing.T) {
	c := NewClassifier(Markers{Authenticated: "table#portfolio"})

	assert.False(t, c.LoggedIn(listingPage))
	assert.True(t, c.LoggedIn(`<table id="portfolio"><tr><td>x</td></tr></table>`))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsFatal(ErrAuthentication))
	assert.True(t, IsFatal(ErrSecondFactorTimeout))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrSessionProbe)))
	assert.False(t, IsFatal(errors.New("transient")))
}

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{Username: "u"}.Empty())
	assert.False(t, Credentials{Username: "u", Password: "p"}.Empty())
}
