package musicbrainz

import (
	"strconv"
	"time"
)

const userAgent = `metatune/v0.1.0 ( https://go.noctark.ai/metatune )`

type Client struct {
	*MBClient
	*CAAClient
}

func DefaultClient() Client {
	return Client{
		// https://musicbrainz.org/doc/MusicBrainz_API/Rate_Limiting
		MBClient: &MBClient{
			BaseURL:   "https://musicbrainz.org/ws/2/",
			RateLimit: 1 * time.Second,
			UserAgent: userAgent,
		},
		// https://wiki.musicbrainz.org/Cover_Art_Archive/API#Rate_limiting_rules
		CAAClient: &CAAClient{
			BaseURL: "https://coverartarchive.org/",
		},
	}
}

type StatusError int

func (se StatusError) Error() string {
	return strconv.Itoa(int(se))
}
