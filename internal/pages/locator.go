package pages

import "fmt"

// Locator describes which element to act on. It is never a live handle:
// Base.Resolve evaluates it on every operation, so re-renders between actions
// do not invalidate it.
type Locator struct {
	Role     string // ARIA role; when set, Selector is ignored
	Name     string // accessible name used with Role
	Selector string // CSS or Playwright selector
}

// ByRole addresses an element by ARIA role and accessible name.
func ByRole(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// BySelector addresses an element by selector.
func BySelector(selector string) Locator {
	return Locator{Selector: selector}
}

func (l Locator) String() string {
	if l.Role != "" {
		if l.Name == "" {
			return fmt.Sprintf("role=%s", l.Role)
		}
		return fmt.Sprintf("role=%s[name=%q]", l.Role, l.Name)
	}
	return l.Selector
}
