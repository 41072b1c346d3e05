// Generates a dev L1 keeper key (secp256k1) and prints it as env lines:
// - private key (hex), read as ${NETWORK}_L1_PRIVATE_KEY
// - address to fund for finalizeFlush gas
package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	network := flag.String("network", "LOCALHOST", "network prefix of the env keys")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	prefix := strings.ToUpper(*network)
	fmt.Printf("%s_L1_PRIVATE_KEY=%x\n", prefix, crypto.FromECDSA(key))
	fmt.Printf("# keeper address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
}
