package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig         string
	flagInput          string
	flagFormat         string
	flagWidth          int
	flagHeight         int
	flagOutputWidth    int
	flagOutputHeight   int
	flagFPS            int
	flagHorizontalFlip bool
	flagVerticalFlip   bool
	flagBroker         string
	flagClientID       string
	flagSubTopic       string
	flagPubTopic       string
	flagQoS            uint8
	flagHeader         bool
	flagCount          int
	flagHTTPAddress    string
	flagHelp           bool
	flagVersion        bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "JSON configuration file")
	flag.StringVarP(&flagInput, "input", "i", "/dev/video0", "Video capture device")
	flag.StringVarP(&flagFormat, "format", "f", "MJPG", "Capture pixel format")
	flag.IntVarP(&flagWidth, "width", "x", 640, "Capture width")
	flag.IntVarP(&flagHeight, "height", "y", 480, "Capture height")
	flag.IntVar(&flagOutputWidth, "output-width", 240, "Published frame width")
	flag.IntVar(&flagOutputHeight, "output-height", 240, "Published frame height")
	flag.IntVarP(&flagFPS, "fps", "r", 10, "Target frame rate")
	flag.BoolVar(&flagHorizontalFlip, "hflip", false, "Flip horizontally")
	flag.BoolVar(&flagVerticalFlip, "vflip", false, "Flip vertically")
	flag.StringVarP(&flagBroker, "mqtt-address", "m", "tcp://192.168.1.95:1883", "MQTT broker address")
	flag.StringVar(&flagClientID, "client-id", "s5p6818_Client", "MQTT client identifier")
	flag.StringVar(&flagSubTopic, "sub-topic", "6050_date", "Command topic")
	flag.StringVar(&flagPubTopic, "pub-topic", "6818_image", "Frame topic")
	flag.Uint8Var(&flagQoS, "qos", 1, "MQTT quality of service")
	flag.BoolVar(&flagHeader, "frame-header", false, "Prefix frames with id and length")
	flag.IntVarP(&flagCount, "count", "n", 0, "Stop after this many frames")
	flag.StringVar(&flagHTTPAddress, "http-address", "", "Serve /metrics and /preview")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Camera frame streaming over MQTT for embedded devices

Usage: framelinkd [OPTION]...

Options given on the command line override the configuration file.

Configuration:
  -c, --config=FILE          JSON configuration file

Video source:
  -i, --input=FILE           Video capture device (default: /dev/video0)
  -f, --format=FOURCC        Capture pixel format: MJPG, JPEG, RGB3 or RGBP
                               (default: MJPG)
  -x, --width=NUM            Capture width (default: 640)
  -y, --height=NUM           Capture height (default: 480)
      --output-width=NUM     Published frame width (default: 240)
      --output-height=NUM    Published frame height (default: 240)
  -r, --fps=NUM              Target frame rate (default: 10)
      --hflip                Flip video horizontally
      --vflip                Flip video vertically

Network:
  -m, --mqtt-address=URI     MQTT broker address (default: tcp://192.168.1.95:1883)
      --client-id=STR        MQTT client identifier (default: s5p6818_Client)
      --sub-topic=TOPIC      Command topic (default: 6050_date)
      --pub-topic=TOPIC      Frame topic (default: 6818_image)
      --qos=NUM              Quality of service, 0 to 2 (default: 1)
      --frame-header         Prefix each frame with an 8-byte id/length header
      --http-address=ADDR    Serve /metrics and /preview on ADDR

Miscellaneous:
  -n, --count=NUM            Stop after NUM capture cycles
  -h, --help                 Prints this help message and exits
  -v, --version              Prints version information and exits

Set FRAMELINK_LOG to adjust logging, e.g. FRAMELINK_LOG=debug,link=trace

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//   __                          _  _         _
	//  / _| _ __  __ _  _ __   ___ | |(_) _ __  | | __
	// | |_ | '__|/ _` || '_ ` _ \ / _ \| || || '_ \ | |/ /
	// |  _|| |  | (_| || | | | | |  __/| || || | | ||   <
	// |_|  |_|   \__,_||_| |_| |_|\___||_||_||_| |_||_|\_\

	// Line 1
	r.Printf("  __ ")
	y.Printf("     ")
	b.Printf("      ")
	r.Printf("                ")
	y.Printf(" _ ")
	b.Printf(" _ ")
	r.Printf("      ")
	y.Println(" _    ")

	// Line 2
	r.Printf(" / _|")
	y.Printf(" _ __")
	b.Printf("  __ _")
	r.Printf("  _ __ ___   ___")
	y.Printf("| |")
	b.Printf("(_)")
	r.Printf(" _ __ ")
	y.Println("| | __")

	// Line 3
	r.Printf("| |_ ")
	y.Printf("| '__")
	b.Printf("|/ _` |")
	r.Printf("| '_ ` _ \\ / _ \\")
	y.Printf("| |")
	b.Printf("| |")
	r.Printf("| '_ \\ ")
	y.Println("| |/ /")

	// Line 4
	r.Printf("|  _|")
	y.Printf("| |  ")
	b.Printf("| (_| |")
	r.Printf("| | | | | |  __/")
	y.Printf("| |")
	b.Printf("| |")
	r.Printf("| | | |")
	y.Println("|   < ")

	// Line 5
	r.Printf("|_|  ")
	y.Printf("|_|  ")
	b.Printf(" \\__,_|")
	r.Printf("|_| |_| |_|\\___|")
	y.Printf("|_|")
	b.Printf("|_|")
	r.Printf("|_| |_|")
	y.Println("|_|\\_\\")

	fmt.Println()
	fmt.Println(helpString)
}

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("framelinkd", GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
}
