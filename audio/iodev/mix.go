/*
NAME
  mix.go

DESCRIPTION
  mix.go implements write_streams, the multi-stream output mixing policy
  described in spec.md §4.8: bound the write by the streams' playback
  frames, zero-fill up to that limit, then mix every stream into it.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package iodev

import (
	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/stream"
)

// DrainInfo reports a draining stream's separate playback limit, since a
// draining stream must be allowed to finish its queued frames even if
// every other stream has run dry.
type DrainInfo struct {
	Stream     *stream.DevStream
	DrainLimit int
}

// WriteStreams mixes every active DevStream into dst, following the
// multi-stream policy: the write limit is the minimum playback_frames
// across non-draining streams (draining streams are bounded separately by
// drainLimits), dst is zero-filled from frame 0 up to that limit, and every
// stream is mixed in starting at frame 0 of dst. Per-stream device offsets
// do not shift where a stream lands in dst, and streams are not aligned to
// the furthest-ahead offset. It returns the number of frames committed to
// dst.
func WriteStreams(dst area.AudioArea, streams []*stream.DevStream, drainLimits map[*stream.DevStream]int, playbackFrames map[*stream.DevStream]int) (framesWritten int, err error) {
	if len(streams) == 0 {
		return 0, nil
	}

	writeLimit := -1
	for _, s := range streams {
		if dl, draining := drainLimits[s]; draining {
			if dl < writeLimit || writeLimit == -1 {
				// Draining streams contribute via their own limit and never
				// shrink the limit the other streams are held to.
				continue
			}
			continue
		}
		pf := playbackFrames[s]
		if writeLimit == -1 || pf < writeLimit {
			writeLimit = pf
		}
	}
	if writeLimit == -1 {
		// Every stream is draining: bound by the largest drain limit so the
		// tail still gets flushed.
		for _, dl := range drainLimits {
			if dl > writeLimit {
				writeLimit = dl
			}
		}
	}
	if writeLimit < 0 {
		writeLimit = 0
	}
	if writeLimit > dst.Frames {
		writeLimit = dst.Frames
	}

	area.Silence(dst, 0, writeLimit)

	for _, s := range streams {
		limit := writeLimit
		if dl, draining := drainLimits[s]; draining && dl < limit {
			limit = dl
		}
		if limit <= 0 {
			continue
		}
		mixed, mErr := s.Mix(dst, limit)
		if mErr != nil {
			return framesWritten, mErr
		}
		if mixed > framesWritten {
			framesWritten = mixed
		}
	}
	return framesWritten, nil
}
