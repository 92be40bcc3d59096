package metatuneflag

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.senan.xyz/flagconf"

	"go.noctark.ai/metatune"
	"go.noctark.ai/metatune/acoustid"
	"go.noctark.ai/metatune/clientutil"
	"go.noctark.ai/metatune/ffmpeg"
	"go.noctark.ai/metatune/fpcalc"
	"go.noctark.ai/metatune/lyrics"
	"go.noctark.ai/metatune/musicbrainz"
	"go.noctark.ai/metatune/notifications"
)

func DefaultClient() {
	chain := clientutil.Chain(
		clientutil.WithLogging(slog.Default()),
		clientutil.WithUserAgent(fmt.Sprintf(`%s/%s`, metatune.Name, metatune.Version)),
	)

	http.DefaultTransport = chain(http.DefaultTransport)
}

func Parse() {
	userConfig, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}

	defaultConfigPath := filepath.Join(userConfig, metatune.Name, "config")
	configPath := flag.String("config-path", defaultConfigPath, "Path to config file")

	printVersion := flag.Bool("version", false, "Print the version and exit")
	printConfig := flag.Bool("config", false, "Print the parsed config and exit")

	flag.Parse()
	flagconf.ReadEnvPrefix = func(_ *flag.FlagSet) string { return metatune.Name }
	flagconf.ParseEnv()
	flagconf.ParseConfig(*configPath)

	if *printVersion {
		fmt.Printf("%s %s\n", flag.CommandLine.Name(), metatune.Version)
		os.Exit(0)
	}
	if *printConfig {
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Printf("%-16s %s\n", f.Name, f.Value)
		})
		os.Exit(0)
	}
}

func Config() *metatune.Config {
	var cfg metatune.Config

	ff := &ffmpeg.Tool{}
	flag.StringVar(&ff.Command, "ffmpeg-command", "ffmpeg", "ffmpeg command, may include args")
	cfg.Normalizer, cfg.TagWriter = ff, ff

	fpc := &fpcalc.Extractor{}
	flag.StringVar(&fpc.Command, "fpcalc-command", "fpcalc", "fpcalc command, may include args")
	cfg.Fingerprinter = fpc

	aid := &acoustid.Client{}
	flag.StringVar(&aid.BaseURL, "acoustid-base-url", `https://api.acoustid.org/`, "AcoustID base URL")
	flag.StringVar(&aid.Key, "acoustid-key", "", "AcoustID application API key")
	flag.DurationVar(&aid.RateLimit, "acoustid-rate-limit", 334*time.Millisecond, "AcoustID rate limit duration")
	cfg.AcoustID = aid

	mb := musicbrainz.DefaultClient()
	flag.StringVar(&mb.MBClient.BaseURL, "mb-base-url", `https://musicbrainz.org/ws/2/`, "MusicBrainz base URL")
	flag.DurationVar(&mb.MBClient.RateLimit, "mb-rate-limit", 1*time.Second, "MusicBrainz rate limit duration")
	flag.StringVar(&mb.CAAClient.BaseURL, "caa-base-url", `https://coverartarchive.org/`, "CoverArtArchive base URL")
	flag.DurationVar(&mb.CAAClient.RateLimit, "caa-rate-limit", 0, "CoverArtArchive rate limit duration")
	cfg.MusicBrainz, cfg.CoverArt = mb.MBClient, mb.CAAClient

	flag.Var(&lyricsParser{&cfg.Lyrics}, "lyrics", "Lyrics sources to use in order, eg \"genius musixmatch\"")

	flag.StringVar(&cfg.WorkDir, "work-dir", "", "Directory for intermediate artifacts (default system temp dir)")
	flag.IntVar(&cfg.Workers, "workers", 4, "Concurrent files in a batch")
	flag.BoolVar(&cfg.WritePlaceholders, "write-placeholders", false, "Write partial tags even on a low confidence match")
	flag.BoolVar(&cfg.Rename, "rename", false, "Rename files to \"Artist - Title\" after tagging")

	return &cfg
}

func Notifications() *notifications.Notifications {
	var n notifications.Notifications
	flag.Var(&notificationsParser{&n}, "notification-uri", "Add a shoutrrr notification URI for an event (stackable)")
	return &n
}

var _ flag.Value = (*notificationsParser)(nil)
var _ flag.Value = (*lyricsParser)(nil)

type notificationsParser struct{ *notifications.Notifications }

func (n *notificationsParser) Set(value string) error {
	eventsRaw, uri, ok := strings.Cut(value, " ")
	if !ok {
		return fmt.Errorf("invalid notification uri format. expected eg \"ev1,ev2 uri\"")
	}
	var lineErrs []error
	for _, ev := range strings.Split(eventsRaw, ",") {
		ev, uri = strings.TrimSpace(ev), strings.TrimSpace(uri)
		err := n.AddURI(notifications.Event(ev), uri)
		lineErrs = append(lineErrs, err)
	}
	return errors.Join(lineErrs...)
}
func (n notificationsParser) String() string {
	if n.Notifications == nil {
		return ""
	}
	var parts []string
	n.Notifications.IterMappings(func(e notifications.Event, uri string) {
		url, _ := url.Parse(uri)
		parts = append(parts, fmt.Sprintf("%s: %s://%s/...", e, url.Scheme, url.Host))
	})
	return strings.Join(parts, ", ")
}

type lyricsParser struct{ source *lyrics.Source }

func (l *lyricsParser) Set(value string) error {
	var chain lyrics.ChainSource
	for _, arg := range strings.Fields(value) {
		source, err := lyrics.NewSource(arg, 500*time.Millisecond)
		if err != nil {
			return err
		}
		chain.Sources = append(chain.Sources, source)
	}
	if len(chain.Sources) == 0 {
		return fmt.Errorf("no lyrics sources provided")
	}
	*l.source = chain
	return nil
}
func (l lyricsParser) String() string {
	if l.source == nil || *l.source == nil {
		return ""
	}
	chain, ok := (*l.source).(lyrics.ChainSource)
	if !ok {
		return ""
	}
	var parts []string
	for _, s := range chain.Sources {
		parts = append(parts, fmt.Sprint(s))
	}
	return strings.Join(parts, " ")
}
