package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/upxl/pkg/link/mqtt"
	"github.com/robotalks/upxl/pkg/telemetry"
)

var (
	mqttURL = "mqtt://localhost:1883/upxl/"
)

func init() {
	if val := os.Getenv("UPXL_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("+/"+telemetry.MetaTopic, mqtt.Handler(func(topic string, payload []byte) {
		id := strings.TrimSuffix(topic, "/"+telemetry.MetaTopic)
		if len(payload) == 0 {
			log.Printf("%s: offline", id)
			return
		}
		log.Printf("%s: %s", id, string(payload))
	}))
	q.Sub("+/"+telemetry.StatsTopic, mqtt.Handler(func(topic string, payload []byte) {
		stats, err := telemetry.Decode(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", stats.DeviceId, stats.String())
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
