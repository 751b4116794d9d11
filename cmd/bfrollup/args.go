package main

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/pkg/errors"
)

// parseTxArgs parses the trailing <sender> <contract_id> <payload>
// triple shared by the transition and gen commands.
func parseTxArgs(args []string) (sender [driver.SenderLen]byte, id uint8, payload []byte, err error) {
	senderBytes, err := hexutil.Decode(args[0])
	if err != nil {
		return sender, 0, nil, errors.Wrapf(err, "parsing sender %q", args[0])
	}
	if len(senderBytes) != driver.SenderLen {
		return sender, 0, nil, errors.Errorf("sender %q has %d bytes, want %d", args[0], len(senderBytes), driver.SenderLen)
	}
	copy(sender[:], senderBytes)

	id, err = parseContractID(args[1])
	if err != nil {
		return sender, 0, nil, err
	}

	payload, err = hexutil.Decode(args[2])
	if err != nil {
		return sender, 0, nil, errors.Wrapf(err, "parsing payload %q", args[2])
	}
	return sender, id, payload, nil
}

func parseContractID(s string) (uint8, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing contract id %q", s)
	}
	if v < 0 || v > 255 {
		return 0, errors.Errorf("contract id %d out of range 0..255", v)
	}
	return uint8(v), nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
