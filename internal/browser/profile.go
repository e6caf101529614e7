package browser

import (
	"github.com/playwright-community/playwright-go"

	"github.com/deepsurf-ai/deepsurf/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// navigatorShim masks the usual headless-automation tells before any page
// script runs.
const navigatorShim = `
Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined
});

const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications' ?
        Promise.resolve({ state: Notification.permission }) :
        originalQuery(parameters)
);

window.chrome = {
    runtime: {},
    loadTimes: function() {},
    csi: function() {},
    app: {}
};

Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5]
});

Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en']
});

Object.defineProperty(navigator, 'hardwareConcurrency', {
    get: () => 8
});

Object.defineProperty(navigator, 'deviceMemory', {
    get: () => 8
});

navigator.getBattery = () => {
    return Promise.resolve({
        charging: true,
        chargingTime: 0,
        dischargingTime: Infinity,
        level: 1
    });
};
`

// Profile bundles the launch arguments, context options, and init script
// that shape how a browser context presents itself to target sites.
type Profile struct {
	cfg config.BrowserConfig
}

// NewProfile builds a profile from browser configuration.
func NewProfile(cfg config.BrowserConfig) *Profile {
	return &Profile{cfg: cfg}
}

// LaunchArgs returns the Chromium command line arguments, merging hardening
// defaults with user-provided ones.
func (p *Profile) LaunchArgs() []string {
	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
	}
	return append(args, p.cfg.Args...)
}

// ContextOptions returns the options for a new isolated browser context.
func (p *Profile) ContextOptions() playwright.BrowserNewContextOptions {
	userAgent := p.cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.cfg.ViewportWidth,
			Height: p.cfg.ViewportHeight,
		},
		UserAgent:       playwright.String(userAgent),
		AcceptDownloads: playwright.Bool(true),
		ExtraHttpHeaders: map[string]string{
			"Accept-Language":           "en-US,en;q=0.9",
			"Upgrade-Insecure-Requests": "1",
		},
	}
	if p.cfg.Locale != "" {
		opts.Locale = playwright.String(p.cfg.Locale)
	}
	if p.cfg.Timezone != "" {
		opts.TimezoneId = playwright.String(p.cfg.Timezone)
	}
	if p.cfg.IgnoreTLSErrors {
		opts.IgnoreHttpsErrors = playwright.Bool(true)
	}
	return opts
}

// InitScript returns the script injected into every page before load.
func (p *Profile) InitScript() string {
	return navigatorShim
}
