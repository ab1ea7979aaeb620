/*
NAME
  commands.go

DESCRIPTION
  commands.go implements dispatch, the synchronous command handler for the
  main-thread -> audio-thread protocol described in spec.md §4.8.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package engine

import (
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/iodev"
	"github.com/ausocean/cras/audio/stream"
)

// bindStreamToDev builds a DevStream for rs on dev and, if dev already has
// streams bound, seeds the new stream's per-device offset from the first
// existing one (clamped to cb_threshold), per the append-stream policy in
// spec.md §4.8.
func bindStreamToDev(rs *stream.RStream, dev *iodev.IoDev, maxFrames int, preLinear bool) (*stream.DevStream, error) {
	ds, err := stream.NewDevStream(rs, dev.Backend.Format(), maxFrames, preLinear)
	if err != nil {
		return nil, err
	}
	if existing := dev.DevStreams(); len(existing) > 0 {
		ds.SetDevOffset(existing[0].DevOffset())
	}
	return ds, nil
}

// dispatch handles one Command and always sends exactly one Reply,
// matching the synchronous ack contract: the sender blocks on the
// command's Reply channel until the worker replies.
func (t *AudioThread) dispatch(cmd Command) {
	reply := Reply{}
	switch cmd.ID {
	case AddOpenDev:
		reply.Err = t.handleAddOpenDev(cmd)
	case RmOpenDev:
		reply.Err = t.handleRmOpenDev(cmd)
	case AddStream:
		reply.Err = t.handleAddStream(cmd)
	case DisconnectStream:
		reply.Err = t.handleDisconnectStream(cmd)
	case DrainStream:
		reply.Millis, reply.Err = t.handleDrainStream(cmd)
	case ConfigGlobalRemix:
		reply.OldRemix = t.remix
		t.remix = cmd.Remix
	case DevStartRamp:
		reply.Err = t.handleDevStartRamp(cmd)
	case DumpThreadInfo:
		reply.ThreadInfo = t.dumpThreadInfo()
	case RemoveCallback:
		// Callback registration is worker-private infrastructure for fd
		// event sources; this Go rendition drives devices directly rather
		// than through registered fd callbacks, so this is a no-op ack.
	case Stop:
		t.stopped = true
	default:
		reply.Err = crerr.New(crerr.ProtocolError, "unknown command id")
	}

	if cmd.Reply != nil {
		cmd.Reply <- reply
	}
}

func (t *AudioThread) handleAddOpenDev(cmd Command) error {
	if cmd.Dev == nil {
		return crerr.New(crerr.InvalidArg, "AddOpenDev requires a device")
	}
	e := &devEntry{dev: cmd.Dev}
	switch cmd.Dev.Dir {
	case iodev.Playback:
		t.outputs = append(t.outputs, e)
	case iodev.Capture:
		t.inputs = append(t.inputs, e)
	}
	return nil
}

func (t *AudioThread) handleRmOpenDev(cmd Command) error {
	if cmd.Dev == nil {
		return crerr.New(crerr.InvalidArg, "RmOpenDev requires a device")
	}
	t.removeOutput(cmd.Dev)
	t.removeInput(cmd.Dev)
	return nil
}

// handleAddStream binds cmd.RStream to every device in cmd.Devs, building
// a DevStream per binding. The append-stream offset policy copies the
// first existing stream's per-device offset (clamped to cb_threshold) into
// the new stream, so different streams don't read different devices at
// different points.
func (t *AudioThread) handleAddStream(cmd Command) error {
	if cmd.RStream == nil || len(cmd.Devs) == 0 {
		return crerr.New(crerr.InvalidArg, "AddStream requires a stream and at least one device")
	}
	for i, dev := range cmd.Devs {
		maxFrames := cmd.RStream.BufFrames
		ds, err := bindStreamToDev(cmd.RStream, dev, maxFrames, cmd.PreLinear)
		if err != nil {
			return err
		}
		ds.Master = i == 0
		dev.AttachStream(ds)
	}
	return nil
}

func (t *AudioThread) handleDisconnectStream(cmd Command) error {
	if cmd.RStream == nil || cmd.Dev == nil {
		return crerr.New(crerr.InvalidArg, "DisconnectStream requires a stream and a device")
	}
	for _, ds := range cmd.Dev.DevStreams() {
		if ds.Stream == cmd.RStream {
			cmd.Dev.RemoveStream(ds)
			return nil
		}
	}
	return crerr.New(crerr.InvalidArg, "stream not bound to device")
}

func (t *AudioThread) handleDrainStream(cmd Command) (int, error) {
	if cmd.RStream == nil {
		return 0, crerr.New(crerr.InvalidArg, "DrainStream requires a stream")
	}
	for _, ds := range cmd.RStream.Devices() {
		t.drainLimits[ds] = cmd.RStream.Shm.Level() / cmd.RStream.Format.FrameBytes()
	}
	return cmd.RStream.DrainMillis(), nil
}

func (t *AudioThread) handleDevStartRamp(cmd Command) error {
	if cmd.Dev == nil {
		return crerr.New(crerr.InvalidArg, "DevStartRamp requires a device")
	}
	switch cmd.Ramp {
	case RampDownMute:
		for _, ds := range cmd.Dev.DevStreams() {
			ds.Stream.Muted = true
		}
	case RampUpUnmute, RampUpStart:
		for _, ds := range cmd.Dev.DevStreams() {
			ds.Stream.Muted = false
		}
	}
	return nil
}

func (t *AudioThread) dumpThreadInfo() ThreadInfo {
	numStreams := 0
	seen := make(map[*stream.RStream]*StreamInfo)
	var order []*stream.RStream
	addEntries := func(entries []*devEntry) {
		for _, e := range entries {
			for _, ds := range e.dev.DevStreams() {
				numStreams++
				rs := ds.Stream
				si, ok := seen[rs]
				if !ok {
					si = &StreamInfo{ID: rs.ID, BitsPerSecond: rs.Bitrate()}
					seen[rs] = si
					order = append(order, rs)
				}
				si.CoarseAdjustments += ds.Stats().CoarseAdjustments
			}
		}
	}
	addEntries(t.outputs)
	addEntries(t.inputs)

	streams := make([]StreamInfo, len(order))
	for i, rs := range order {
		streams[i] = *seen[rs]
	}

	return ThreadInfo{
		OpenOutputs: len(t.outputs),
		OpenInputs:  len(t.inputs),
		NumStreams:  numStreams,
		Streams:     streams,
	}
}
