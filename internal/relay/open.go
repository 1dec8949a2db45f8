package relay

import "github.com/pkg/browser"

// openBrowser opens url with the platform default handler.
func openBrowser(url string) error {
	return browser.OpenURL(url)
}
