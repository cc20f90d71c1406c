package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/longhorn/resource-dispatcher/api"
	"github.com/longhorn/resource-dispatcher/types"
)

const (
	FlagURL        = "url"
	FlagPrincipal  = "principal"
	FlagBy         = "by"
	FlagKey        = "key"
	FlagSeconds    = "seconds"
	FlagClientInfo = "client-info"

	EnvURL       = "DISPATCHER_URL"
	EnvPrincipal = "DISPATCHER_PRINCIPAL"
)

func clientFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		cli.StringFlag{
			Name:   FlagURL,
			Value:  fmt.Sprintf("http://localhost:%d", types.DefaultAPIPort),
			Usage:  "URL of the dispatcher API",
			EnvVar: EnvURL,
		},
		cli.StringFlag{
			Name:   FlagPrincipal,
			Usage:  "Name the operation is performed as",
			EnvVar: EnvPrincipal,
		},
	}, extra...)
}

var clientInfoFlag = cli.StringFlag{
	Name:  FlagClientInfo,
	Usage: "JSON identity of the caller, requests from this dispatcher itself are skipped",
}

// ResourceCmd operates on external resources through the API of a running daemon.
func ResourceCmd() cli.Command {
	return cli.Command{
		Name:  "resource",
		Usage: "Inspect and operate external resources",
		Subcommands: []cli.Command{
			{
				Name:      "list",
				Usage:     "List the external resources of a node",
				ArgsUsage: "NODE",
				Flags:     clientFlags(),
				Action: runResourceCommand(func(c *cli.Context, r *resty.Request, path string) (*resty.Response, error) {
					return r.Get(path)
				}, 1),
			},
			{
				Name:      "get",
				ArgsUsage: "NODE ID",
				Flags:     clientFlags(),
				Action: runResourceCommand(func(c *cli.Context, r *resty.Request, path string) (*resty.Response, error) {
					return r.Get(path)
				}, 2),
			},
			resourceActionCmd("enable", "Allow the resource to be dispatched", nil, nil),
			resourceActionCmd("disable", "Keep the resource from being dispatched", nil, nil),
			resourceActionCmd("reserve", "Reserve the resource for a third party",
				[]cli.Flag{
					cli.StringFlag{Name: FlagBy, Usage: "Holder of the reservation"},
					cli.StringFlag{Name: FlagKey, Usage: "Key the reservation is made with"},
					cli.IntFlag{Name: FlagSeconds, Usage: "Lease of the reservation, 0 never expires"},
					clientInfoFlag,
				},
				func(c *cli.Context) (interface{}, error) {
					if c.String(FlagBy) == "" {
						return nil, errors.Errorf("require %v", FlagBy)
					}
					return &api.ReserveInput{
						ReservedBy: c.String(FlagBy),
						Key:        c.String(FlagKey),
						Seconds:    c.Int(FlagSeconds),
						ClientInfo: c.String(FlagClientInfo),
					}, nil
				}),
			resourceActionCmd("lock", "Lock the resource for a third party",
				[]cli.Flag{
					cli.StringFlag{Name: FlagBy, Usage: "Holder of the lock"},
					cli.StringFlag{Name: FlagKey, Usage: "Key of the reservation, or the release key"},
					clientInfoFlag,
				},
				func(c *cli.Context) (interface{}, error) {
					if c.String(FlagBy) == "" {
						return nil, errors.Errorf("require %v", FlagBy)
					}
					return &api.LockInput{
						LockedBy:   c.String(FlagBy),
						Key:        c.String(FlagKey),
						ClientInfo: c.String(FlagClientInfo),
					}, nil
				}),
			resourceActionCmd("release", "Drop the reservation and the lock of the resource",
				[]cli.Flag{
					cli.StringFlag{Name: FlagKey, Usage: "Key of the holder, or the release key"},
					clientInfoFlag,
				},
				func(c *cli.Context) (interface{}, error) {
					return &api.ReleaseInput{
						Key:        c.String(FlagKey),
						ClientInfo: c.String(FlagClientInfo),
					}, nil
				}),
			resourceActionCmd("expire", "Drop the reservation of the resource, keeping a lock", nil, nil),
		},
	}
}

type requestFunc func(c *cli.Context, r *resty.Request, path string) (*resty.Response, error)

func resourceActionCmd(action, usage string, flags []cli.Flag, body func(c *cli.Context) (interface{}, error)) cli.Command {
	return cli.Command{
		Name:      action,
		Usage:     usage,
		ArgsUsage: "NODE ID",
		Flags:     clientFlags(flags...),
		Action: runResourceCommand(func(c *cli.Context, r *resty.Request, path string) (*resty.Response, error) {
			if body != nil {
				input, err := body(c)
				if err != nil {
					return nil, err
				}
				r.SetBody(input)
			}
			return r.SetQueryParam("action", action).Post(path)
		}, 2),
	}
}

func runResourceCommand(do requestFunc, nargs int) func(c *cli.Context) {
	return func(c *cli.Context) {
		if err := resourceCommand(c, do, nargs); err != nil {
			logrus.Fatalf("Error running %v: %v", c.Command.Name, err)
		}
	}
}

func resourceCommand(c *cli.Context, do requestFunc, nargs int) error {
	if c.NArg() != nargs {
		return errors.Errorf("expected %v arguments, got %v", nargs, c.NArg())
	}
	args := c.Args()
	path := "/v1/nodes/" + args.Get(0) + "/resources"
	if nargs > 1 {
		path += "/" + args.Get(1)
	}

	client := resty.New().
		SetHostURL(strings.TrimSuffix(c.String(FlagURL), "/")).
		SetHeader("Accept", "application/json")
	r := client.R()
	if principal := c.String(FlagPrincipal); principal != "" {
		r.SetHeader(types.HeaderPrincipal, principal)
	}

	resp, err := do(c, r, path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("%v: %v", resp.Status(), strings.TrimSpace(resp.String()))
	}
	fmt.Println(resp.String())
	return nil
}
