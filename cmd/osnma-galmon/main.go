// osnma-galmon reads a Galmon transport stream on standard input,
// authenticates the Galileo navigation data it carries and prints an
// authentication summary at every subframe boundary.
//
// Example usage, with key material downloaded from the GSC:
//
//	ubxtool --galileo ... | osnma-galmon -pubkey OSNMA_PublicKey.pem -pkid 1 \
//	    -merkle merkle_root.txt
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/pkg/galileo"
	"github.com/navsec/osnma/pkg/galmon"
	"github.com/navsec/osnma/pkg/osnma"
)

// config mirrors the command line flags for use in a YAML receiver
// configuration file.
type config struct {
	PublicKeyFile  string `yaml:"pubkey"`
	PublicKeyID    int    `yaml:"pkid"`
	MerkleRoot     string `yaml:"merkle_root"`
	MaxSatellites  int    `yaml:"max_satellites"`
	DisableSlowMac bool   `yaml:"disable_slow_mac"`
	OnlySlowMac    bool   `yaml:"only_slow_mac"`
	TagThreshold   int    `yaml:"tag_threshold"`
	LogFile        string `yaml:"log_file"`
	LogLevel       string `yaml:"log_level"`
}

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func logLevel(name string) (log.Level, error) {
	switch name {
	case "", "warn":
		return log.LevelWarning, nil
	case "none":
		return log.LevelNone, nil
	case "error":
		return log.LevelError, nil
	case "info":
		return log.LevelInfo, nil
	case "debug":
		return log.LevelDebug, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

func fatal(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "osnma-galmon: "+format+"\n", a...)
	os.Exit(1)
}

func main() {
	configFile := flag.String("config", "", "YAML receiver configuration file")
	pubkeyFile := flag.String("pubkey", "", "OSNMA public key file (PEM, SEC1 or hex)")
	pkid := flag.Int("pkid", 0, "public key id of -pubkey")
	merkleFile := flag.String("merkle", "", "file holding the Merkle tree root in hex")
	sats := flag.Int("sats", 36, "satellites tracked in parallel (12 or 36)")
	noSlowMac := flag.Bool("no-slow-mac", false, "disable ADKD=12 processing")
	onlySlowMac := flag.Bool("only-slow-mac", false, "process only ADKD=12")
	threshold := flag.Int("threshold", osnma.DefaultTagThreshold, "authentication bit threshold")
	logFile := flag.String("log-file", "", "rotate logs into this file instead of stderr")
	level := flag.String("log-level", "info", "log level: none, error, warn, info, debug")
	flag.Parse()

	cfg := &config{
		PublicKeyFile:  *pubkeyFile,
		PublicKeyID:    *pkid,
		MerkleRoot:     "",
		MaxSatellites:  *sats,
		DisableSlowMac: *noSlowMac,
		OnlySlowMac:    *onlySlowMac,
		TagThreshold:   *threshold,
		LogFile:        *logFile,
		LogLevel:       *level,
	}
	if *configFile != "" {
		fileCfg, err := loadConfig(*configFile)
		if err != nil {
			fatal("%v", err)
		}
		cfg = fileCfg
	}

	lv, err := logLevel(cfg.LogLevel)
	if err != nil {
		fatal("%v", err)
	}
	log.SetLevel(lv)
	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
		})
	}

	engineCfg := osnma.Config{
		MaxSatellites:  cfg.MaxSatellites,
		DisableSlowMac: cfg.DisableSlowMac,
		OnlySlowMac:    cfg.OnlySlowMac,
		TagThreshold:   cfg.TagThreshold,
	}
	if cfg.PublicKeyFile != "" {
		pub, err := osnma.LoadPublicKey(cfg.PublicKeyFile, uint8(cfg.PublicKeyID))
		if err != nil {
			fatal("%v", err)
		}
		engineCfg.PublicKey = &pub
	}
	if cfg.MerkleRoot != "" {
		root, err := osnma.ParseMerkleRoot(cfg.MerkleRoot)
		if err != nil {
			fatal("%v", err)
		}
		engineCfg.MerkleRoot = &root
	} else if *merkleFile != "" {
		root, err := osnma.LoadMerkleRoot(*merkleFile)
		if err != nil {
			fatal("%v", err)
		}
		engineCfg.MerkleRoot = &root
	}

	engine, err := osnma.New(engineCfg)
	if err != nil {
		fatal("%v", err)
	}

	if err := run(engine); err != nil && err != io.EOF {
		fatal("%v", err)
	}
	printCounters(engine)
}

func run(engine *osnma.Engine) error {
	reader := galmon.NewReader(os.Stdin)
	var lastSubframe galileo.Gst
	haveSubframe := false
	for {
		packet, err := reader.ReadPacket()
		if err != nil {
			return err
		}
		gi := packet.GI
		if gi == nil {
			continue
		}
		// A TOW of 604800 or 604801 shows up around week rollover.
		tow := gi.GnssTOW % galileo.SecondsPerWeek
		wn := uint16(gi.GnssWN) + uint16(gi.GnssTOW/galileo.SecondsPerWeek)
		gst, err := galileo.NewGst(wn, tow)
		if err != nil {
			continue
		}
		svn, err := galileo.NewSvn(int(gi.GnssSV))
		if err != nil {
			continue
		}
		band := galileo.BandE1B
		if gi.HasSigid && gi.Sigid == 5 {
			band = galileo.BandE5B
		}
		engine.FeedInav(gi.Contents, svn, gst, band)
		if len(gi.Reserved1) > 0 {
			engine.FeedOsnma(gi.Reserved1, svn, gst)
		}

		sf := gst.SubframeStart()
		if !haveSubframe {
			lastSubframe = sf
			haveSubframe = true
		} else if sf != lastSubframe {
			lastSubframe = sf
			printStatus(engine)
		}
	}
}

func printStatus(engine *osnma.Engine) {
	for _, adkd := range []galileo.Adkd{galileo.AdkdCed, galileo.AdkdTiming} {
		fmt.Printf("AUTH %v", adkd)
		found := false
		for n := 1; n <= galileo.NumSvns; n++ {
			svn := galileo.Svn(n)
			if data, ok := engine.Authenticated(adkd, svn); ok {
				found = true
				fmt.Printf(" %v TOW %d", svn, data.Gst.Tow())
			}
		}
		if !found {
			fmt.Print(" NONE")
		}
		fmt.Println()
	}
}

func printCounters(engine *osnma.Engine) {
	counters := engine.Counters()
	if len(counters) == 0 {
		return
	}
	fmt.Println("error counters:")
	for name, n := range counters {
		fmt.Printf("  %s: %d\n", name, n)
	}
}
