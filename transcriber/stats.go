package transcriber

import (
	"fmt"
	"time"

	"opentranscribe/convert"
	"opentranscribe/log"
)

type Stats struct {
	ConnectDur    time.Duration
	SessionDur    time.Duration
	SentChunks    int
	SentBytes     uint64
	DroppedChunks int
	SendErrors    int
	RecvMessages  int
	RecvFinal     int
	RecvInterim   int
	DecodeErrors  int
}

// AudioDuration is the seconds of wire audio delivered to the socket.
func (s Stats) AudioDuration() float64 {
	return float64(s.SentBytes) / convert.BytesPerSecond
}

func (s Stats) LogData() log.StreamMetricsData {
	return log.StreamMetricsData{
		ConnectMs:     float64(s.ConnectDur.Milliseconds()),
		TotalMs:       float64(s.SessionDur.Milliseconds()),
		AudioS:        s.AudioDuration(),
		SentChunks:    s.SentChunks,
		SentKB:        float64(s.SentBytes) / 1024,
		DroppedChunks: s.DroppedChunks,
		RecvMessages:  s.RecvMessages,
		RecvFinal:     s.RecvFinal,
		RecvInterim:   s.RecvInterim,
		DecodeErrors:  s.DecodeErrors,
	}
}

func FormatStats(s Stats) []string {
	return []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB PCM sent", s.AudioDuration(), float64(s.SentBytes)/1024),
		fmt.Sprintf("stream:     PCM16 %dHz mono", convert.SampleRate),
		fmt.Sprintf("connect:    %dms", s.ConnectDur.Milliseconds()),
		fmt.Sprintf("sent:       %d chunks | %d dropped | %d errors", s.SentChunks, s.DroppedChunks, s.SendErrors),
		fmt.Sprintf("recv:       %d msgs (%d final, %d interim, %d malformed)", s.RecvMessages, s.RecvFinal, s.RecvInterim, s.DecodeErrors),
		fmt.Sprintf("total:      %dms", s.SessionDur.Milliseconds()),
	}
}
