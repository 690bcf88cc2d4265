package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "gyrosrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:  ":8000",
		Nodes: []ObjSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `gyrosrv communicates with the gyro bench hardware and exposes an HTTP
interface to it.  This enables a server-client architecture, and the clients
can leverage the excellent HTTP libraries for any programming language.

Usage:
	gyrosrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `gyrosrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

Without a configuration, the server will close immediately and display an
error that there are no endpoints.

No two endpoints can have the same URL.

URLs may look like any variation between "bench/lia" or "/bench/lia/*", the
leading and trailing slashes, as well as the *, are added by the server if
missing.

Hardware and matching "type" fields, case insensitive, alphabetical by vendor:
- Agilent:
	> 33250A function generator "33250a", "agilent-function-generator"
	> DSO1024A oscilloscope "dso1024a", "scope"
- Ando:
	> AQ6317B optical spectrum analyzer "aq6317b", "osa"
- ILX Lightwave:
	> LDX-3724B laser diode driver "ldx3724", "laser-diode"
- Measurement Computing:
	> USB-1608FS-Plus DAQ "usb1608fs" (Args: Serial, Channel)
- National Instruments:
	> NI 9215 DAQ "ni9215" (Args: Dev; requires the NI-DAQmx driver)
- Newmark:
	> NSC-A1 rotation stage "nsc-a1", "rotation-stage"
	  (Args: Channel, Limits: {Min, Max})
- Newport:
	> 1830-C optical power meter "1830c", "powermeter"
- Stanford Research Systems:
	> DS345 function generator "ds345"
	> SR844 lock-in amplifier "sr844", "lockin"
- Simulated:
	> white noise ADC "sim-adc" (Args: Bias, Noise)

In mock mode, nsc-a1 nodes become simulated stages and DAQ nodes become
simulated ADCs; instruments without simulators refuse to start.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("gyrosrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(c)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
