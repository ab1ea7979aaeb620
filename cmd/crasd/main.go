/*
NAME
  crasd - the audio engine daemon.

DESCRIPTION
  crasd wires the audio engine (audio/engine, audio/iodev, audio/stream) to
  real ALSA hardware and a netsender cloud control plane: it opens a
  capture and a playback device, attaches one stream to each, and runs a
  control loop that polls the cloud for configuration changes (sample
  rate, channels, buffer sizing, amplifier volume) the same way
  cmd/audio-netsender and cmd/speaker do.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements crasd, the audio engine daemon.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/client/pi/gpio"
	"github.com/ausocean/client/pi/netlogger"
	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/utils/ioext"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/cras/audio/config"
	"github.com/ausocean/cras/audio/engine"
	"github.com/ausocean/cras/audio/iodev"
	"github.com/ausocean/cras/audio/stream"
	"github.com/ausocean/cras/device/alsaio"
)

// Logging configuration, following cmd/speaker's lumberjack + netlogger
// pairing.
const (
	logPath      = "/var/log/crasd/crasd.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
)

// Misc constants.
const (
	netSendRetryTime = 5 * time.Second
	defaultSleepTime = 60 // seconds
	minAmpVolume     = 0
	maxAmpVolume     = 63
	volAddr          = 0x4B
	i2cPort          = 1

	// threadInfoInterval is how often DUMP_THREAD_INFO is polled and fanned
	// out to the dump sinks.
	threadInfoInterval = time.Minute
)

// Cloud variables crasd understands, reported to netsender on startup.
var varMap = map[string]string{
	config.KeySampleRate:   "int",
	config.KeyChannels:     "int",
	config.KeyBufferFrames: "int",
	config.KeyCBThreshold:  "int",
	"AmpVolume":            "int",
	"CaptureSource":        "string",
	"PlaybackSink":         "string",
}

// crasDaemon wires a running AudioThread to hardware devices and netsender.
type crasDaemon struct {
	log      logging.Logger
	ns       *netsender.Sender
	cfg      *config.Config
	thr      *engine.AudioThread
	dumpSink io.WriteCloser

	captureSource string
	playbackSink  string

	capture     *alsaio.Device
	playback    *alsaio.Device
	captureDev  *iodev.IoDev
	playbackDev *iodev.IoDev
	capStream   *stream.RStream
	playStream  *stream.RStream

	lastDump time.Time
	vs       int
}

func main() {
	captureSource := flag.String("capture", "", "ALSA capture device title, or empty for the first match")
	playbackSink := flag.String("playback", "", "ALSA playback device title, or empty for the first match")
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	netLog := netlogger.New()
	log := logging.New(logging.Info, io.MultiWriter(fileLog, netLog), true)

	log.Debug("initialising netsender client")
	ns, err := netsender.New(log, gpio.InitPin, nil, gpio.WritePin, netsender.WithVarTypes(varMap))
	if err != nil {
		log.Fatal("could not initialise netsender client", "error", err)
	}

	cfg := &config.Config{Logger: log}
	vars, err := ns.Vars()
	if err != nil {
		log.Warning("could not fetch initial vars, using defaults", "error", err)
	}
	cfg.Update(vars)
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	// Fan DUMP_THREAD_INFO snapshots out to the rotating log file and
	// stdout at once, the way revid.pipeline fans raw stream output out to
	// multiple sinks via ioext.MultiWriteCloser.
	dumpSink := ioext.MultiWriteCloser(fileLog, os.Stdout)

	d := &crasDaemon{
		log:           log,
		ns:            ns,
		cfg:           cfg,
		thr:           engine.New(log),
		dumpSink:      dumpSink,
		captureSource: *captureSource,
		playbackSink:  *playbackSink,
	}
	go d.thr.Run()
	go d.handleResets()

	if err := d.openDevices(); err != nil {
		log.Fatal("could not open audio devices", "error", err)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warning("sd_notify READY failed", "error", err)
	} else if ok {
		log.Debug("sd_notify READY sent")
	}

	d.run(netLog)
}

// openDevices opens one capture and one playback ALSA device at the
// daemon's current format, registers them with the engine via
// AddOpenDev, and attaches one RStream to each via AddStream.
func (d *crasDaemon) openDevices() error {
	f := d.cfg.DefaultFormat()

	capDev, err := alsaio.Open(d.log, iodev.Capture, d.captureSource, f)
	if err != nil {
		return err
	}
	d.capture = capDev
	d.captureDev = iodev.New(capDev, iodev.Capture, d.cfg.MinCBLevel, d.cfg.MaxCBLevel)

	play, err := alsaio.Open(d.log, iodev.Playback, d.playbackSink, f)
	if err != nil {
		capDev.Close()
		return err
	}
	d.playback = play
	d.playbackDev = iodev.New(play, iodev.Playback, d.cfg.MinCBLevel, d.cfg.MaxCBLevel)

	reply := make(chan engine.Reply, 1)
	d.thr.Commands() <- engine.Command{ID: engine.AddOpenDev, Dev: d.captureDev, Reply: reply}
	if r := <-reply; r.Err != nil {
		return r.Err
	}
	d.thr.Commands() <- engine.Command{ID: engine.AddOpenDev, Dev: d.playbackDev, Reply: reply}
	if r := <-reply; r.Err != nil {
		return r.Err
	}

	d.capStream = stream.NewRStream(1, stream.Capture, f, d.cfg.BufferFrames, d.cfg.CBThreshold, 0)
	d.playStream = stream.NewRStream(2, stream.Playback, f, d.cfg.BufferFrames, d.cfg.CBThreshold, 0)

	d.thr.Commands() <- engine.Command{ID: engine.AddStream, Devs: []*iodev.IoDev{d.captureDev}, RStream: d.capStream, Reply: reply}
	if r := <-reply; r.Err != nil {
		return r.Err
	}
	d.thr.Commands() <- engine.Command{ID: engine.AddStream, Devs: []*iodev.IoDev{d.playbackDev}, RStream: d.playStream, Reply: reply}
	if r := <-reply; r.Err != nil {
		return r.Err
	}
	return nil
}

// handleResets drains the engine's severe-underrun side channel and resets
// (closes and reopens) whichever device posted to it, re-registering the
// same device slot and re-attaching its original RStream so client-visible
// stream identity survives the reset, per spec.md §4.7/§7.
func (d *crasDaemon) handleResets() {
	for dev := range d.thr.ResetRequests() {
		d.log.Warning("resetting device after severe underrun", "device", dev)
		if err := d.resetDevice(dev); err != nil {
			d.log.Error("device reset failed", "error", err)
		}
	}
}

// resetDevice removes dev from the engine, closes and reopens its backend,
// re-adds it, and re-attaches whichever of capStream/playStream it carried.
func (d *crasDaemon) resetDevice(dev *iodev.IoDev) error {
	reply := make(chan engine.Reply, 1)
	d.thr.Commands() <- engine.Command{ID: engine.RmOpenDev, Dev: dev, Reply: reply}
	if r := <-reply; r.Err != nil {
		return r.Err
	}

	f := d.cfg.DefaultFormat()
	switch dev {
	case d.captureDev:
		if err := d.capture.Close(); err != nil {
			d.log.Warning("error closing capture device during reset", "error", err)
		}
		capDev, err := alsaio.Open(d.log, iodev.Capture, d.captureSource, f)
		if err != nil {
			return err
		}
		d.capture = capDev
		d.captureDev = iodev.New(capDev, iodev.Capture, d.cfg.MinCBLevel, d.cfg.MaxCBLevel)
		d.thr.Commands() <- engine.Command{ID: engine.AddOpenDev, Dev: d.captureDev, Reply: reply}
		if r := <-reply; r.Err != nil {
			return r.Err
		}
		d.thr.Commands() <- engine.Command{ID: engine.AddStream, Devs: []*iodev.IoDev{d.captureDev}, RStream: d.capStream, Reply: reply}
		return (<-reply).Err
	case d.playbackDev:
		if err := d.playback.Close(); err != nil {
			d.log.Warning("error closing playback device during reset", "error", err)
		}
		play, err := alsaio.Open(d.log, iodev.Playback, d.playbackSink, f)
		if err != nil {
			return err
		}
		d.playback = play
		d.playbackDev = iodev.New(play, iodev.Playback, d.cfg.MinCBLevel, d.cfg.MaxCBLevel)
		d.thr.Commands() <- engine.Command{ID: engine.AddOpenDev, Dev: d.playbackDev, Reply: reply}
		if r := <-reply; r.Err != nil {
			return r.Err
		}
		d.thr.Commands() <- engine.Command{ID: engine.AddStream, Devs: []*iodev.IoDev{d.playbackDev}, RStream: d.playStream, Reply: reply}
		return (<-reply).Err
	default:
		return fmt.Errorf("reset requested for unknown device")
	}
}

// dumpThreadInfoSnapshot polls DUMP_THREAD_INFO and writes a formatted snapshot to
// dumpSink, mirroring revid's periodic status reporting.
func (d *crasDaemon) dumpThreadInfoSnapshot() {
	reply := make(chan engine.Reply, 1)
	d.thr.Commands() <- engine.Command{ID: engine.DumpThreadInfo, Reply: reply}
	r := <-reply
	if r.Err != nil {
		d.log.Error("DumpThreadInfo failed", "error", r.Err)
		return
	}
	fmt.Fprintf(d.dumpSink, "thread info: outputs=%d inputs=%d streams=%d\n",
		r.ThreadInfo.OpenOutputs, r.ThreadInfo.OpenInputs, r.ThreadInfo.NumStreams)
	for _, si := range r.ThreadInfo.Streams {
		fmt.Fprintf(d.dumpSink, "  stream %d: %d bps, %d coarse adjustments\n",
			si.ID, si.BitsPerSecond, si.CoarseAdjustments)
	}
}

// run starts the netsender control loop: it polls the cloud for var
// changes, updates the engine's config, and pushes the amplifier volume
// to the I2C DAC, mirroring cmd/speaker's run loop.
func (d *crasDaemon) run(nl *netlogger.Logger) {
	for {
		d.log.Debug("running netsender")
		if err := d.ns.Run(); err != nil {
			d.log.Warning("netsender run failed, retrying", "error", err)
			time.Sleep(netSendRetryTime)
			continue
		}

		if err := nl.Send(d.ns); err != nil {
			d.log.Warning("could not send logs", "error", err)
		}

		if ok, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
			d.log.Warning("sd_notify WATCHDOG failed", "error", err)
		} else if ok {
			d.log.Debug("sd_notify WATCHDOG sent")
		}

		if time.Since(d.lastDump) > threadInfoInterval {
			d.dumpThreadInfoSnapshot()
			d.lastDump = time.Now()
		}

		newVs := d.ns.VarSum()
		if d.vs == newVs {
			d.sleep()
			continue
		}
		d.vs = newVs
		d.log.Info("varsum changed", "vs", d.vs)

		vars, err := d.ns.Vars()
		if err != nil {
			d.log.Error("netsender failed to get vars", "error", err)
			time.Sleep(netSendRetryTime)
			continue
		}
		d.cfg.Update(vars)
		if err := d.cfg.Validate(); err != nil {
			d.log.Warning("configuration invalid after update", "error", err)
		}

		if v := vars["AmpVolume"]; v != "" {
			d.setAmpVolume(v)
		}

		d.sleep()
	}
}

func (d *crasDaemon) setAmpVolume(v string) {
	vol, err := strconv.ParseInt(v, 10, 8)
	if err != nil {
		d.log.Error("failed to parse amplifier volume", "error", err)
		return
	}
	if vol < minAmpVolume || vol > maxAmpVolume {
		d.log.Error("invalid amplifier volume", "volume", vol)
		return
	}
	bus := embd.NewI2CBus(i2cPort)
	if err := bus.WriteByte(volAddr, byte(vol)); err != nil {
		d.log.Error("failed to write amplifier volume", "error", err)
	}
}

func (d *crasDaemon) sleep() {
	t, err := strconv.Atoi(d.ns.Param("mp"))
	if err != nil {
		d.log.Error("could not get sleep time, using default", "error", err)
		t = defaultSleepTime
	}
	time.Sleep(time.Duration(t) * time.Second)
}
