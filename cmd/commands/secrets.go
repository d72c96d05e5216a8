package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/studio/internal/config"
	"github.com/dohr-michael/studio/internal/secrets"
)

// NewSecretsCommand returns the secrets subcommand.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Encrypt credentials for the config file and .env",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the age key pair (no-op when it exists)",
				Action: runSecretsInit,
			},
			{
				Name:      "encrypt",
				Usage:     "Print the ENC[age:...] form of a value",
				ArgsUsage: "<value>",
				Action:    runSecretsEncrypt,
			},
			{
				Name:      "set",
				Usage:     "Store an encrypted variable in the .env file",
				ArgsUsage: "<KEY> <value>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "Store the value without encrypting it",
					},
				},
				Action: runSecretsSet,
			},
		},
	}
}

func runSecretsInit(_ context.Context, _ *cli.Command) error {
	path := secrets.KeyPath()
	recipient, err := secrets.GenerateIdentity(path)
	if err != nil {
		return err
	}
	fmt.Printf("Key:       %s\nRecipient: %s\n", path, recipient)
	return nil
}

func encryptValue(value string) (string, error) {
	identity, err := secrets.LoadIdentity(secrets.KeyPath())
	if err != nil {
		return "", fmt.Errorf("%w (run `studio secrets init` first)", err)
	}
	return secrets.Encrypt(value, identity.Recipient())
}

func runSecretsEncrypt(_ context.Context, cmd *cli.Command) error {
	value := cmd.Args().First()
	if value == "" {
		return fmt.Errorf("usage: studio secrets encrypt <value>")
	}
	enc, err := encryptValue(value)
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: studio secrets set <KEY> <value>")
	}
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)

	if !cmd.Bool("plain") {
		enc, err := encryptValue(value)
		if err != nil {
			return err
		}
		value = enc
	}

	path := config.DotenvPath()
	if err := secrets.SetEnv(path, key, value); err != nil {
		return err
	}
	fmt.Printf("%s written to %s\n", key, path)
	return nil
}
