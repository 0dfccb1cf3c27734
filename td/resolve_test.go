package td

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectForm(t *testing.T) {
	t.Run("errors with ErrFormNotFound if the form list is empty", func(t *testing.T) {
		_, err := SelectForm(nil, OpReadProperty)
		assert.ErrorIs(t, err, ErrFormNotFound)
	})

	t.Run("prefers the first form tagged with the desired operation", func(t *testing.T) {
		forms := []Form{
			{Href: "/write", Op: []string{OpWriteProperty}},
			{Href: "/read", Op: []string{OpReadProperty}},
			{Href: "/read2", Op: []string{OpReadProperty}},
		}

		f, err := SelectForm(forms, OpReadProperty)
		assert.NoError(t, err)
		assert.Equal(t, "/read", f.Href)
	})

	t.Run("falls back to the first form when no op tags match", func(t *testing.T) {
		forms := []Form{
			{Href: "/anything"},
			{Href: "/other"},
		}

		f, err := SelectForm(forms, OpObserveProperty)
		assert.NoError(t, err)
		assert.Equal(t, "/anything", f.Href)
	})
}

func TestResolveHref(t *testing.T) {
	t.Run("passes an absolute href through untouched", func(t *testing.T) {
		href, err := ResolveHref("http://base.example", "http://doc.example/td.json", "http://device.example/enabled")
		assert.NoError(t, err)
		assert.Equal(t, "http://device.example/enabled", href)
	})

	t.Run("resolves a relative href against the declared base", func(t *testing.T) {
		href, err := ResolveHref("http://base.example/things/", "http://doc.example/td.json", "enabled")
		assert.NoError(t, err)
		assert.Equal(t, "http://base.example/things/enabled", href)
	})

	t.Run("falls back to the document url when no base is declared", func(t *testing.T) {
		href, err := ResolveHref("", "http://doc.example/things/td.json", "/enabled")
		assert.NoError(t, err)
		assert.Equal(t, "http://doc.example/enabled", href)
	})

	t.Run("errors when a relative href has nothing to resolve against", func(t *testing.T) {
		_, err := ResolveHref("", "", "/enabled")
		assert.Error(t, err)
	})
}
