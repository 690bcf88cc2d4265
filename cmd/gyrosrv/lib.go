package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fog-lab/gyrolab/agilent"
	"github.com/fog-lab/gyrolab/ando"
	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/generichttp"
	httpdaq "github.com/fog-lab/gyrolab/generichttp/daq"
	"github.com/fog-lab/gyrolab/generichttp/laser"
	"github.com/fog-lab/gyrolab/generichttp/motion"
	"github.com/fog-lab/gyrolab/generichttp/tmc"
	"github.com/fog-lab/gyrolab/ixllightwave"
	"github.com/fog-lab/gyrolab/mccdaq"
	"github.com/fog-lab/gyrolab/newmark"
	"github.com/fog-lab/gyrolab/newport"
	"github.com/fog-lab/gyrolab/oscilloscope"
	"github.com/fog-lab/gyrolab/prologix"
	"github.com/fog-lab/gyrolab/server/middleware/locker"
	"github.com/fog-lab/gyrolab/srs"
	"github.com/fog-lab/gyrolab/util"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"github.com/gotmc/libusb"
)

// ObjSetup holds the typical triplet of args for a New<device> call.
type ObjSetup struct {
	// Addr holds the network address of the remote device,
	// e.g. 192.168.100.123:2006 for a device connected to port 6
	// on a digi portserver, or /dev/ttyUSB0 for an RS232 device
	Addr string `yaml:"Addr"`

	// Endpoint is the final "directory" to put object functionality under,
	// ex. Endpoint="/bench/lia" will produce routes of /bench/lia/sensitivity, etc.
	Endpoint string `yaml:"Endpoint"`

	// Type is the "type" of the object, e.g. sr844
	Type string `yaml:"Type"`

	// Args holds any arguments to pass into the constructor for the object
	Args map[string]interface{} `yaml:"Args"`
}

// Config is a struct that holds the initialization parameters for the
// bench nodes.  It is to be populated by a yaml unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock substitutes simulated hardware where a simulator exists
	Mock bool `yaml:"Mock"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

func argFloat(args map[string]interface{}, key string, def float64) float64 {
	if args == nil {
		return def
	}
	if v, ok := args[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return def
}

func argString(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// stageLimits decodes Args: Limits: {Min: x, Max: y}.  The yaml decoder
// hands back nested maps keyed by interface{}, so both shapes are handled.
func stageLimits(args map[string]interface{}) (util.Limiter, bool) {
	if args == nil {
		return util.Limiter{}, false
	}
	vals := map[string]float64{}
	switch raw := args["Limits"].(type) {
	case map[string]interface{}:
		for k, v := range raw {
			if f, ok := toFloat(v); ok {
				vals[k] = f
			}
		}
	case map[interface{}]interface{}:
		for k, v := range raw {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			if f, ok := toFloat(v); ok {
				vals[ks] = f
			}
		}
	default:
		return util.Limiter{}, false
	}
	return util.Limiter{Min: vals["Min"], Max: vals["Max"]}, true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// scpiMaker picks the transport for a SCPI node: a Prologix GPIB bridge
// when the args carry a GPIB address, plain TCP otherwise.  Addr is the
// bridge's device file in the GPIB case.
func scpiMaker(node ObjSetup) comm.CreationFunc {
	if node.Args != nil {
		if _, ok := node.Args["GPIB"]; ok {
			return prologix.CreationFunc(node.Addr, int(argFloat(node.Args, "GPIB", 0)))
		}
	}
	return comm.BackingOffTCPConnMaker(node.Addr, 3*time.Second)
}

// newUSB1608FS opens a USB-1608FS-Plus node, by serial number when one is
// given in the args.
func newUSB1608FS(node ObjSetup) (daq.ADC, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, err
	}
	var d *mccdaq.DAQ
	if sn := argString(node.Args, "Serial"); sn != "" {
		d, err = mccdaq.NewDAQBySerial(ctx, sn)
	} else {
		d, err = mccdaq.NewDAQ(ctx)
	}
	if err != nil {
		return nil, err
	}
	return mccdaq.NewAnalogInput(d, int(argFloat(node.Args, "Channel", 0)))
}

// BuildMux builds a chi router from the config, mounting a submux per
// node.  The mux serves a special route, /endpoints, which returns all
// routes of all nodes as JSON.
func BuildMux(c Config) chi.Router {
	// make the root handler
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	// for every node specified, build a submux
	for _, node := range c.Nodes {
		var (
			httper  generichttp.HTTPer
			mwares  []func(http.Handler) http.Handler
			openErr error
		)
		typ := strings.ToLower(node.Type)
		switch typ {
		case "ds345":
			if c.Mock {
				log.Fatal("DS345 mock interface is not yet implemented")
			}
			httper = tmc.NewHTTPFunctionGenerator(srs.NewDS345From(scpiMaker(node)))

		case "33250a", "agilent-function-generator":
			if c.Mock {
				log.Fatal("33250A mock interface is not yet implemented")
			}
			httper = tmc.NewHTTPFunctionGenerator(agilent.NewFunctionGenerator(node.Addr))

		case "sr844", "lockin":
			if c.Mock {
				log.Fatal("SR844 mock interface is not yet implemented")
			}
			httper = tmc.NewHTTPLockIn(srs.NewSR844From(scpiMaker(node)))

		case "dso1024a", "scope":
			if c.Mock {
				log.Fatal("DSO1024A mock interface is not yet implemented")
			}
			httper = oscilloscope.NewHTTPScope(agilent.NewScope(node.Addr))

		case "aq6317b", "osa":
			if c.Mock {
				log.Fatal("AQ6317B mock interface is not yet implemented")
			}
			httper = tmc.NewHTTPSpectrumAnalyzer(ando.NewAQ6317BFrom(scpiMaker(node)))

		case "1830c", "powermeter":
			if c.Mock {
				log.Fatal("1830-C mock interface is not yet implemented")
			}
			httper = tmc.NewHTTPPowerMeter(newport.NewModel1830CFrom(scpiMaker(node)))

		case "ldx3724", "laser-diode":
			if c.Mock {
				log.Fatal("LDX-3724B mock interface is not yet implemented")
			}
			httper = laser.NewHTTPLaserController(ixllightwave.NewLDX3724B(node.Addr))

		case "nsc-a1", "rotation-stage":
			var stage newmark.Stage
			if c.Mock {
				sim := newmark.NewSimStage()
				if lim, ok := stageLimits(node.Args); ok {
					sim.Limits = lim
				}
				stage = sim
			} else {
				nsc := newmark.NewNSCA1(node.Addr, int(argFloat(node.Args, "Channel", 1)))
				if lim, ok := stageLimits(node.Args); ok {
					nsc.Limits = lim
				}
				stage = nsc
			}
			hs := newmark.NewHTTPRotationStage(stage)
			if lim, ok := stageLimits(node.Args); ok {
				// vet axis moves before they reach the controller and
				// publish the limits on the node
				limits := motion.LimitMiddleware{
					Limits: map[string]util.Limiter{"A": lim},
					Mov:    newmark.SingleAxis{S: stage},
				}
				mwares = append(mwares, limits.Check)
				limits.Inject(hs)
			}
			httper = hs

		case "usb1608fs":
			var adc daq.ADC
			if c.Mock {
				adc = mockADC(node)
			} else {
				adc, openErr = newUSB1608FS(node)
			}
			if openErr == nil {
				httper = httpdaq.NewHTTPADC(adc)
			}

		case "ni9215":
			var adc daq.ADC
			if c.Mock {
				adc = mockADC(node)
			} else {
				adc, openErr = newNI9215(node)
			}
			if openErr == nil {
				httper = httpdaq.NewHTTPADC(adc)
			}

		case "sim-adc":
			httper = httpdaq.NewHTTPADC(mockADC(node))

		default:
			log.Fatal("type ", typ, " not understood")
		}
		if openErr != nil {
			// a dark bench should not take down the nodes that did open
			log.Printf("node %s (%s) failed to open, skipping: %v", node.Endpoint, typ, openErr)
			continue
		}

		// prepare the URL, "bench/lia" => "/bench/lia/*"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)

		// bind to the mux
		r := chi.NewRouter()
		r.Use(mwares...)
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// mockADC builds the simulated ADC used by sim-adc nodes and by DAQ nodes
// in mock mode.
func mockADC(node ObjSetup) *daq.Sim {
	bias := argFloat(node.Args, "Bias", 0)
	noise := argFloat(node.Args, "Noise", 0.01)
	seed := int64(argFloat(node.Args, "Seed", 1))
	return daq.NewSim(bias, noise, seed)
}
