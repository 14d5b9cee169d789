// device выводит человекочитаемое имя устройства из User-Agent.
// Нужна только грубая метка для списка сессий ("Chrome on Windows"),
// поэтому хватает поиска подстрок без полного парсера UA.
package device

import "strings"

// LabelFromUserAgent возвращает метку устройства вида "<браузер> on <ОС>".
func LabelFromUserAgent(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	browser := "Unknown Browser"
	switch {
	// Edge содержит "Chrome", поэтому проверяется первым.
	case strings.Contains(userAgent, "Edg"):
		browser = "Edge"
	case strings.Contains(userAgent, "Chrome"):
		browser = "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		browser = "Firefox"
	case strings.Contains(userAgent, "Safari"):
		browser = "Safari"
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(userAgent, "Windows"):
		os = "Windows"
	// iPhone UA содержит "like Mac OS X", поэтому iOS проверяется раньше Mac.
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		os = "iOS"
	case strings.Contains(userAgent, "Android"):
		os = "Android"
	case strings.Contains(userAgent, "Mac"):
		os = "macOS"
	case strings.Contains(userAgent, "Linux"):
		os = "Linux"
	}

	return browser + " on " + os
}
