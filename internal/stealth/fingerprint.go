package stealth

import (
	"fmt"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

var screenResolutions = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{2560, 1440},
	{1680, 1050},
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Paris",
}

// Fingerprint is the set of browser properties presented to the site
type Fingerprint struct {
	Width    int
	Height   int
	Cores    int
	Memory   int
	Timezone string
}

// NewFingerprint draws a plausible fingerprint
func NewFingerprint(rnd *rand.Rand) Fingerprint {
	res := screenResolutions[rnd.Intn(len(screenResolutions))]
	return Fingerprint{
		Width:    res[0],
		Height:   res[1],
		Cores:    4 + rnd.Intn(13),
		Memory:   []int{4, 8, 16}[rnd.Intn(3)],
		Timezone: timezones[rnd.Intn(len(timezones))],
	}
}

// JS returns the script overriding screen, hardware, timezone and WebGL properties
func (f Fingerprint) JS() string {
	return fmt.Sprintf(`(() => {
	Object.defineProperty(screen, 'width', { get: () => %[1]d });
	Object.defineProperty(screen, 'height', { get: () => %[2]d });
	Object.defineProperty(screen, 'availWidth', { get: () => %[1]d });
	Object.defineProperty(screen, 'availHeight', { get: () => %[2]d - 40 });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %[3]d });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => %[4]d });

	const DateTimeFormat = Intl.DateTimeFormat;
	Intl.DateTimeFormat = function(locale, options) {
		options = options || {};
		options.timeZone = options.timeZone || '%[5]s';
		return new DateTimeFormat(locale, options);
	};

	try {
		const proto = WebGLRenderingContext.prototype;
		const getParameter = proto.getParameter;
		proto.getParameter = function(param) {
			if (param === 37445) return 'Google Inc. (NVIDIA)';
			if (param === 37446) return 'ANGLE (NVIDIA, NVIDIA GeForce GTX 1080 Direct3D11 vs_5_0 ps_5_0, D3D11)';
			return getParameter.call(this, param);
		};
	} catch (e) {}
})();`, f.Width, f.Height, f.Cores, f.Memory, f.Timezone)
}

// ApplyFingerprint installs a random fingerprint on a page created with the
// go-rod/stealth evasions
func ApplyFingerprint(page *rod.Page, rnd *rand.Rand, logger zerolog.Logger) error {
	fp := NewFingerprint(rnd)
	if _, err := page.EvalOnNewDocument(fp.JS()); err != nil {
		return err
	}

	logger.Debug().
		Int("width", fp.Width).
		Int("height", fp.Height).
		Str("timezone", fp.Timezone).
		Msg("Fingerprint applied")
	return nil
}
