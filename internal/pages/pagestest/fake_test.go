package pagestest

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

var (
	_ playwright.Locator = (*FakeElement)(nil)
	_ interface {
		Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator
	} = (*FakeTab)(nil)
)

func TestFakeElement_SatisfiesLocator(t *testing.T) {
	tab := NewFakeTab("http://app.test/login")
	el := tab.Add("css:#username")

	var loc playwright.Locator = tab.Locator("#username")
	require.Same(t, el, loc)
	require.Same(t, el, loc.First())

	require.NoError(t, loc.Fill("admin"))
	require.Equal(t, "admin", el.Value)
}

func TestFakeElement_AbsentTimesOut(t *testing.T) {
	tab := NewFakeTab("http://app.test/login")

	err := tab.Locator("#missing").Click()
	require.ErrorIs(t, err, playwright.ErrTimeout)
	require.Contains(t, tab.Events(), "click:css:#missing")
}
