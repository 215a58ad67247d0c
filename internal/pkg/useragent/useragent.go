// Package useragent classifies raw User-Agent strings into the device type,
// browser and operating system dimensions used by session records. All
// classification is best-effort: unparsable input degrades to desktop/unknown
// and never produces an error.
package useragent

import (
	"embed"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device type values. Every user agent maps to exactly one of these.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Unknown is the fallback classification for browser and OS.
const Unknown = "unknown"

//go:embed rules.yml
var ruleFiles embed.FS

// UA holds the classification of one user agent string.
type UA struct {
	UserAgent string
	Device    string
	Browser   string
	OS        string
}

// ruleEntry is one ordered pattern rule from rules.yml.
type ruleEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type ruleDatabase struct {
	Browsers []ruleEntry `yaml:"browsers"`
	OSs      []ruleEntry `yaml:"oss"`
}

// regexCache compiles rule patterns on first use.
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *classifier
	once   sync.Once
)

type classifier struct {
	rules ruleDatabase
	cache *regexCache
}

func getClassifier() *classifier {
	once.Do(func() {
		parser = &classifier{cache: newRegexCache()}
		if data, err := ruleFiles.ReadFile("rules.yml"); err == nil {
			// A broken rules file leaves the rule lists empty; classification
			// then falls through to Unknown rather than failing.
			_ = yaml.Unmarshal(data, &parser.rules)
		}
	})
	return parser
}

func (c *classifier) firstMatch(entries []ruleEntry, userAgent string) string {
	for _, entry := range entries {
		regex, err := c.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return entry.Name
		}
	}
	return Unknown
}

// Parse classifies a user agent string across all three dimensions.
func Parse(userAgent string) UA {
	return UA{
		UserAgent: userAgent,
		Device:    DeviceType(userAgent),
		Browser:   Browser(userAgent),
		OS:        OS(userAgent),
	}
}

// Browser returns the browser name, lowercased, or Unknown.
func Browser(userAgent string) string {
	if userAgent == "" {
		return Unknown
	}
	return getClassifier().firstMatch(getClassifier().rules.Browsers, userAgent)
}

// OS returns the operating system name or Unknown.
func OS(userAgent string) string {
	if userAgent == "" {
		return Unknown
	}
	return getClassifier().firstMatch(getClassifier().rules.OSs, userAgent)
}

// DeviceType maps a user agent to mobile, tablet or desktop.
// Tablet signatures are checked before mobile ones: tablet UAs frequently
// also contain generic mobile markers (Android tablets, Silk, etc.).
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		strings.Contains(ua, "kindle") || strings.Contains(ua, "silk") ||
		strings.Contains(ua, "playbook") {
		return DeviceTablet
	}

	// Android without the "Mobile" token is a tablet by convention.
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobile") {
		return DeviceTablet
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return DeviceMobile
	}

	return DeviceDesktop
}
