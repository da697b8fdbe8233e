package main

import (
	"context"
	"flag"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	"github.com/CodedInternet/gorobomotor/onboard/pid"
	"github.com/abiosoft/ishell/v2"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type EnvConfig struct {
	JWT_ISSUER  string `env:"JWT_ISSUER" envDefault:"DEV"`
	JWT_SECRET  string `env:"JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	DEBUG       bool   `env:"DEBUG" envDefault:"false"`
	DATADIR     string `env:"DATADIR" envDefault:"./tmp"`
	CONFIG      string `env:"ROBOT_CONFIG" envDefault:"./robot.yaml"`
	HTMLDIR     string `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	MQTT_BROKER string `env:"MQTT_BROKER"`
	MQTT_TOPIC  string `env:"MQTT_TOPIC" envDefault:"robot/telemetry"`
	DB          *storm.DB
	Robot       *onboard.Robot
	Telemetry   *Telemetry
	Simulated   bool
}

var (
	ENV *EnvConfig
)

func init() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}
}

func main() {
	simulated := flag.Bool("sim", false, "Run against simulated motors instead of real buses")
	port := flag.String("port", "0.0.0.0:8080", "Specify the ip:port to listen on")
	noShell := flag.Bool("noshell", false, "Do not start the interactive shell")
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// setup database
	if err := os.MkdirAll(ENV.DATADIR, 0755); err != nil {
		glog.Fatalf("Unable to create data dir: %v", err)
	}
	db, err := openDb(filepath.Join(ENV.DATADIR, "robot.db"))
	if err != nil {
		glog.Fatalf("Unable to open database: %v", err)
	}
	ENV.DB = db

	// Setup the robot properly so everything works as expected later
	yamlFile, err := ioutil.ReadFile(ENV.CONFIG)
	if err != nil {
		glog.Fatalf("Unable to read yaml file: %v", err)
	}
	config, err := onboard.LoadConfig(yamlFile)
	if err != nil {
		glog.Fatalf("Unable to load robot config: %v", err)
	}

	opener := onboard.OpenBus
	ENV.Simulated = *simulated
	if ENV.Simulated {
		glog.Info("Creating simulator")
		sim := onboard.NewSimulator()
		go sim.Run(ctx)
		opener = sim.Opener
	}

	robot, err := onboard.NewRobot(config, opener)
	if err != nil {
		glog.Fatalf("Unable to initialize robot: %v", err)
	}
	ENV.Robot = robot

	if err := applyTunings(ENV.DB, robot); err != nil {
		glog.Errorf("%v", err)
	}

	go robot.Run(ctx)

	ENV.Telemetry = NewTelemetry(robot, TELEMETRY_INTERVAL)
	if ENV.MQTT_BROKER != "" {
		client := setupMQTTClient(ENV.MQTT_BROKER, "gorobomotor-"+ENV.JWT_ISSUER)
		defer client.Disconnect(250)
		ENV.Telemetry.PublishTo(client, ENV.MQTT_TOPIC)
	}
	go ENV.Telemetry.Run(ctx)

	//---
	// Create a local shell
	//---
	if !*noShell {
		go newShell(robot).Run()
	}

	//---
	// Build the routes
	//---
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", apiRoutes)

	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			glog.Warning("Running in debug mode. Websocket authentication disabled.")
		}

		r.Get("/telemetry", ENV.Telemetry.Handler)
	})

	// add static base routes
	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	server := &http.Server{Addr: *port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	glog.Infof("Listening on %s", *port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Errorf("%v", err)
	}

	stop()
	if err := multierr.Combine(robot.Close(), ENV.DB.Close()); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	for _, data := range []interface{}{&User{}, &Tuning{}} {
		if err := db.Init(data); err != nil {
			db.Close()
			return nil, err
		}
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}

func parseFloats(args []string) ([]float64, error) {
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		values[i] = v
	}
	return values, nil
}

func newShell(robot *onboard.Robot) *ishell.Shell {
	motorNames := func([]string) []string {
		return robot.MotorNames()
	}

	shell := ishell.New()
	shell.Println("Robot motor control shell")
	shell.ShowPrompt(true)
	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true) // yes, revert when done.

			// get email
			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			// get password
			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			// create user
			user := &User{
				Email: email,
				Name:  email,
				Admin: true,
			}
			if err := user.SetPassword([]byte(password)); err != nil {
				c.Err(err)
				return
			}
			if err := ENV.DB.Save(user); err != nil {
				c.Err(err)
				return
			}

			c.Println("Superuser created")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "state - print every motor slot",
		Func: func(c *ishell.Context) {
			for _, m := range robot.State().Motors {
				online := "offline"
				if m.Online {
					online = "online"
				}
				c.Printf("%-7s %-7s ecd %4d  rpm %6d  cur %6d  %3dC", m.Name, online,
					m.Measurement.Encoder, m.Measurement.SpeedRPM, m.Measurement.GivenCurrent, m.Measurement.Temperature)
				if m.Controlled {
					c.Printf("  sp %8.1f  out %6d", m.Setpoint, m.Output)
				}
				c.Println()
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "set",
		Completer: motorNames,
		Help:      "set <motor> <setpoint>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(errors.New("usage: set <motor> <setpoint>"))
				return
			}
			values, err := parseFloats(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			if err := robot.SetSetpoint(c.Args[0], float32(values[0])); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "pid",
		Completer: motorNames,
		Help:      "pid <motor> [<kp> <ki> <kd> <max_out> <max_iout>]",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 && len(c.Args) != 6 {
				c.Err(errors.New("usage: pid <motor> [<kp> <ki> <kd> <max_out> <max_iout>]"))
				return
			}
			name := c.Args[0]

			if len(c.Args) == 6 {
				v, err := parseFloats(c.Args[1:])
				if err != nil {
					c.Err(err)
					return
				}
				gains := pid.Gains{Kp: float32(v[0]), Ki: float32(v[1]), Kd: float32(v[2])}
				limits := pid.Limits{MaxOutput: float32(v[3]), MaxIntegral: float32(v[4])}
				if err := robot.Retune(name, gains, limits); err != nil {
					c.Err(err)
					return
				}
				if err := ENV.DB.Save(&Tuning{Motor: name, Gains: gains, Limits: limits, Updated: time.Now().UTC()}); err != nil {
					c.Err(err)
				}
			}

			for _, m := range robot.State().Motors {
				if m.Name == name && m.PID != nil {
					c.Printf("%s %s %+v %+v\n", name, m.PID.ModeName, m.PID.Gains, m.PID.Limits)
					c.Printf("  err %v  p %.2f  i %.2f  d %.2f  out %.2f\n", m.PID.Error, m.PID.P, m.PID.I, m.PID.D, m.PID.Output)
				}
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "read",
		Help: "read <slot> - raw telemetry by slot index",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: read <slot>"))
				return
			}
			slot, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			m, err := robot.Measurement(slot)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%+v\n", m)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "single",
		Help: "single <value> <channel> - drive one auxiliary channel directly",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(errors.New("usage: single <value> <channel>"))
				return
			}
			value, err := strconv.ParseInt(c.Args[0], 10, 16)
			if err != nil {
				c.Err(err)
				return
			}
			channel, err := strconv.Atoi(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err := robot.SendSingle(int16(value), channel); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "chassis",
		Help: "chassis <vx> <vy> <wz>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 3 {
				c.Err(errors.New("usage: chassis <vx> <vy> <wz>"))
				return
			}
			v, err := parseFloats(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := robot.SetChassis(v[0], v[1], v[2]); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop - zero every setpoint",
		Func: func(c *ishell.Context) {
			robot.Stop()
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "resetids",
		Help: "resetids - ask every motor on the chassis bus to re-enumerate",
		Func: func(c *ishell.Context) {
			c.Print("Reset motor identifiers? [y/N] ")
			if strings.ToLower(strings.TrimSpace(c.ReadLine())) != "y" {
				return
			}
			if err := robot.ResetIdentifiers(); err != nil {
				c.Err(err)
				return
			}
			c.Println("Reset sent")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "offline",
		Help: "offline - list motors that stopped reporting",
		Func: func(c *ishell.Context) {
			var names []string
			for _, key := range robot.Monitor.Offline() {
				names = append(names, hardware.SlotName(key-hardware.LivenessBase))
			}
			c.Println(strings.Join(names, " "))
		},
	})

	return shell
}
