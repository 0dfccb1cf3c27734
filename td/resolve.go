package td

import (
	"fmt"
	"net/url"
)

type ResolveError string

func (e ResolveError) Error() string {
	return string(e)
}

const ErrFormNotFound = ResolveError("no form available for interaction")

// SelectForm picks the form serving the desired operation. The first form
// explicitly tagged with the operation wins; if no form carries the tag the
// first form in the list is used, as documents which omit op tags imply any
// operation. An empty form list is an ErrFormNotFound, never a crash.
func SelectForm(forms []Form, desiredOp string) (Form, error) {
	if len(forms) == 0 {
		return Form{}, ErrFormNotFound
	}

	for _, f := range forms {
		if f.ServesOp(desiredOp) {
			return f, nil
		}
	}

	return forms[0], nil
}

// ResolveHref resolves a form href to an absolute URL. Absolute hrefs pass
// through untouched; relative hrefs resolve against the document's declared
// base, falling back to the URL the document was fetched from.
func ResolveHref(base string, documentURL string, href string) (string, error) {
	hrefURL, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("failed to parse form href '%s': %w", href, err)
	}

	if hrefURL.IsAbs() {
		return href, nil
	}

	root := base
	if root == "" {
		root = documentURL
	}

	if root == "" {
		return "", fmt.Errorf("relative form href '%s' with no base to resolve against", href)
	}

	rootURL, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url '%s': %w", root, err)
	}

	return rootURL.ResolveReference(hrefURL).String(), nil
}
