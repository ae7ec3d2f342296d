package kit

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/dataspace-labs/go-transfermgr/lib/translog"
)

func QuietTransferLogs() {
	translog.SetupLogLevels()

	_ = logging.SetLogLevel("transfermgr", "ERROR") // set this to INFO to watch processes advance.
	_ = logging.SetLogLevel("transfer-net", "ERROR")
	_ = logging.SetLogLevel("dispatch", "ERROR")
	_ = logging.SetLogLevel("provision", "ERROR")
	_ = logging.SetLogLevel("basichost", "ERROR")
	_ = logging.SetLogLevel("swarm2", "ERROR")
	_ = logging.SetLogLevel("net/identify", "ERROR")
}
