package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/eteu-technologies/hook-deployer/internal/message"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalln("uncaught error: ", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "run-deploy",
		Usage: "trigger a deployment through a hook-deployer webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "http://localhost:9000",
				EnvVars: []string{
					"WEBHOOK_URL",
				},
			},
			&cli.StringFlag{
				Name: "secret",
				EnvVars: []string{
					"WEBHOOK_SECRET",
				},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "app",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name: "data",
			},
			&cli.PathFlag{
				Name:  "payload",
				Usage: "send this file verbatim instead of a generated body",
			},
		},
		Action: entrypoint,
	}
}

func entrypoint(cctx *cli.Context) (err error) {
	var body []byte
	if path := cctx.Path("payload"); path != "" {
		if body, err = os.ReadFile(path); err != nil {
			err = fmt.Errorf("failed to read payload: %w", err)
			return
		}
	} else if body, err = buildTrigger(cctx.String("app"), cctx.StringSlice("data")); err != nil {
		return
	}

	log.Println("triggering deployment of", cctx.String("app"))
	var reply string
	if reply, err = postWebhook(cctx.Context, cctx.String("url"), cctx.String("app"), cctx.String("secret"), body); err != nil {
		err = fmt.Errorf("failed to trigger deployment: %w", err)
		return
	}
	log.Println("server replied:", reply)

	return
}

func buildTrigger(app string, pairs []string) (data []byte, err error) {
	trigger := message.Trigger{
		App:  app,
		Data: make(map[string]string),
	}

	for _, value := range pairs {
		split := strings.SplitN(value, "=", 2)
		if len(split) != 2 {
			err = fmt.Errorf("invalid data %q, expected key=value", value)
			return
		}
		trigger.Data[split[0]] = split[1]
	}

	if data, err = json.Marshal(&trigger); err != nil {
		err = fmt.Errorf("failed to marshal trigger: %w", err)
		return
	}
	return
}
