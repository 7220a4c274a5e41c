// Command swara-compare plays two WAV files through the synchronized
// dual-track player, for A/B listening between an original take and a
// generated rendition.
package main

import (
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/adapters/media"
	"github.com/satriahrh/swara/adapters/speaker"
	"github.com/satriahrh/swara/internal/dualtrack"
	"github.com/satriahrh/swara/internal/logging"
)

func main() {
	var (
		fileA   = flag.String("a", "", "WAV file for track A")
		fileB   = flag.String("b", "", "WAV file for track B")
		volumeA = flag.Float64("vol-a", 1.0, "track A fader position, 0..1")
		volumeB = flag.Float64("vol-b", 1.0, "track B fader position, 0..1")
		split   = flag.Bool("split", false, "pan track A hard left and track B hard right")
		rate    = flag.Float64("rate", 1.0, "playback rate for both tracks")
		varisp  = flag.Bool("varispeed", false, "let pitch follow the rate instead of preserving it")
		seek    = flag.Duration("seek", 0, "start offset")
	)
	flag.Parse()

	logger, err := logging.New("info")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if *fileA == "" || *fileB == "" {
		logger.Fatal("Both -a and -b WAV files are required")
	}

	srcA, err := media.OpenFile(*fileA)
	if err != nil {
		logger.Fatal("Failed to load track A", zap.Error(err))
	}
	srcB, err := media.OpenFile(*fileB)
	if err != nil {
		logger.Fatal("Failed to load track B", zap.Error(err))
	}

	sink, err := speaker.New(srcA.SampleRate(), 2)
	if err != nil {
		logger.Fatal("Failed to open speaker", zap.Error(err))
	}
	defer sink.Close()

	player := dualtrack.NewPlayer(sink, logger)
	defer player.Close()

	if err := player.Bind(srcA, srcB); err != nil {
		logger.Fatal("Failed to bind tracks", zap.Error(err))
	}
	player.SetVolume(dualtrack.TrackA, *volumeA)
	player.SetVolume(dualtrack.TrackB, *volumeB)
	player.SetStereoSplit(*split)
	if err := player.SetRate(*rate, !*varisp); err != nil {
		logger.Fatal("Invalid rate", zap.Error(err))
	}
	if *seek > 0 {
		player.Seek(*seek)
	}

	if err := player.Play(); err != nil {
		logger.Fatal("Failed to start playback", zap.Error(err))
	}

	logger.Info("Playing",
		zap.String("trackA", *fileA),
		zap.String("trackB", *fileB),
		zap.Duration("duration", player.Duration()),
		zap.Float64("rate", *rate))

	for player.IsPlaying() {
		time.Sleep(100 * time.Millisecond)
	}
	logger.Info("Done", zap.Duration("position", player.CurrentTime()))
}
