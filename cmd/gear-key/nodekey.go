package main

import (
	"fmt"

	"gear-cli/go-backend/internal/nodekey"
	"gear-cli/go-backend/internal/securestore"
	"gear-cli/go-backend/pkg/models"
)

func (a *app) runGenerateNodeKey(args []string) int {
	fs := a.flagSet("generate-node-key")
	out := fs.String("out", "", "write the key to this file instead of printing the secret")
	formatName := fs.String("format", string(nodekey.FormatHex), "key file format with -out: hex or protobuf")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	format, err := nodekey.ParseFormat(*formatName)
	if err != nil {
		return a.fail(err)
	}
	key, err := nodekey.Generate(a.rand)
	if err != nil {
		return a.fail(err)
	}
	info, err := nodeKeyInfo(key)
	if err != nil {
		return a.fail(err)
	}
	if *out != "" {
		data, err := key.Encode(format)
		if err != nil {
			return a.fail(err)
		}
		if err := securestore.WritePrivateFile(*out, data); err != nil {
			return a.fail(err)
		}
	} else {
		info.Secret = "0x" + key.SecretHex()
	}
	a.logger.Info("node key generated", "peer_id", info.PeerID)
	return a.printJSON(info)
}

func (a *app) runInspectNodeKey(args []string) int {
	fs := a.flagSet("inspect-node-key")
	file := fs.String("file", "", "node key file, hex or libp2p protobuf")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	var (
		key *nodekey.Key
		err error
	)
	switch {
	case *file != "" && fs.NArg() == 0:
		key, err = nodekey.ReadFile(*file)
	case *file == "" && fs.NArg() == 1:
		key, err = nodekey.Parse(fs.Arg(0))
	default:
		err = fmt.Errorf("%w: pass a hex secret or -file", errInvalidInput)
	}
	if err != nil {
		return a.fail(err)
	}
	info, err := nodeKeyInfo(key)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(info)
}

func nodeKeyInfo(key *nodekey.Key) (models.NodeKey, error) {
	ma, err := key.Multiaddr()
	if err != nil {
		return models.NodeKey{}, err
	}
	return models.NodeKey{PeerID: key.PeerID().String(), Multiaddr: ma.String()}, nil
}
