package units

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	AttrSNMPSystem     = "snmpSystem"
	AttrSNMPInterfaces = "snmpInterfaces"

	oidSystem  = ".1.3.6.1.2.1.1"
	oidIfEntry = ".1.3.6.1.2.1.2.2.1"
)

// system group scalars, in emitted field order
var systemFields = []struct {
	name string
	oid  string
}{
	{"sysDescr", oidSystem + ".1.0"},
	{"sysObjectID", oidSystem + ".2.0"},
	{"sysUpTime", oidSystem + ".3.0"},
	{"sysContact", oidSystem + ".4.0"},
	{"sysName", oidSystem + ".5.0"},
	{"sysLocation", oidSystem + ".6.0"},
}

// ifEntry columns, in emitted field order
var interfaceColumns = []struct {
	name   string
	column string
}{
	{"ifDescr", "2"},
	{"ifType", "3"},
	{"ifMtu", "4"},
	{"ifSpeed", "5"},
	{"ifPhysAddress", "6"},
	{"ifAdminStatus", "7"},
	{"ifOperStatus", "8"},
}

// SNMPConfig holds the SNMP unit settings.
type SNMPConfig struct {
	Port    int
	Timeout time.Duration
	Retries int
}

// snmpClient is the part of *gosnmp.GoSNMP the unit uses.
type snmpClient interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

type snmpConn struct {
	client snmpClient
	close  func() error
}

func (c *snmpConn) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// SNMPInventory reports the system group and interface table of an SNMP v2c
// agent.
type SNMPInventory struct {
	cfg    SNMPConfig
	logger *slog.Logger
}

func NewSNMPInventory(cfg SNMPConfig, logger *slog.Logger) *SNMPInventory {
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &SNMPInventory{cfg: cfg, logger: logger.With("unit", "snmpInventory")}
}

func (u *SNMPInventory) Name() string { return "snmpInventory" }

func (u *SNMPInventory) Connect(_ context.Context, t *task.Task) (task.Connection, resultcode.Code) {
	logger := u.logger.With("task_id", t.TaskID, "host", t.Target.Host)
	if t.Target.Host == "" {
		logger.Error("No target host supplied")
		return nil, resultcode.NullConnectionObject
	}

	port := t.Target.Port
	if port == 0 {
		port = u.cfg.Port
	}
	g := &gosnmp.GoSNMP{
		Target:         t.Target.Host,
		Port:           uint16(port),
		Version:        gosnmp.Version2c,
		Community:      t.Target.Credentials.Community,
		Timeout:        u.cfg.Timeout,
		Retries:        u.cfg.Retries,
		MaxOids:        gosnmp.MaxOids,
		MaxRepetitions: 25,
	}
	if err := g.Connect(); err != nil {
		logger.Error("SNMP connection failed", "error", err)
		return nil, resultcode.HostConnectFailed
	}
	return &snmpConn{client: g, close: g.Conn.Close}, resultcode.Success
}

func (u *SNMPInventory) Collect(_ context.Context, t *task.Task, conn task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)

	sc, ok := conn.(*snmpConn)
	if !ok || sc == nil || sc.client == nil {
		logger.Error("Connection object is null")
		return resultcode.NullConnectionObject
	}
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}

	var tracker resultcode.Tracker

	if buf.Mapped(AttrSNMPSystem) {
		rec, err := u.system(sc.client)
		if err != nil {
			// UDP has no handshake; the first unanswered request is the
			// connectivity failure.
			logger.Error("SNMP system query failed", "error", err)
			return resultcode.HostConnectFailed
		}
		if err := buf.AppendRecords(AttrSNMPSystem, []datarow.Record{*rec}); err != nil {
			logger.Debug("No system group data", "error", err)
		}
	}

	if buf.Mapped(AttrSNMPInterfaces) {
		records, err := u.interfaces(sc.client)
		if err != nil {
			logger.Error("SNMP interface walk failed", "error", err)
			tracker.Set(resultcode.ProcessingException)
		} else if err := buf.AppendRecords(AttrSNMPInterfaces, records); err != nil {
			logger.Debug("No interface data", "error", err)
		}
	}

	return tracker.Code()
}

func (u *SNMPInventory) system(c snmpClient) (*datarow.Record, error) {
	oids := make([]string, len(systemFields))
	for i, f := range systemFields {
		oids[i] = f.oid
	}
	pkt, err := c.Get(oids)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(pkt.Variables))
	for _, v := range pkt.Variables {
		values[normalizeOID(v.Name)] = pduString(v)
	}

	rec := datarow.NewRecord("system")
	for _, f := range systemFields {
		if v := values[f.oid]; v != "" {
			rec.Set(f.name, v)
		}
	}
	return rec, nil
}

func (u *SNMPInventory) interfaces(c snmpClient) ([]datarow.Record, error) {
	pdus, err := c.BulkWalkAll(oidIfEntry)
	if err != nil {
		return nil, err
	}

	// column -> ifIndex -> value
	table := make(map[string]map[string]string)
	indexes := make(map[string]struct{})
	for _, pdu := range pdus {
		rest := strings.TrimPrefix(normalizeOID(pdu.Name), oidIfEntry+".")
		column, index, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if table[column] == nil {
			table[column] = make(map[string]string)
		}
		if column == "6" {
			table[column][index] = physAddress(pdu)
		} else {
			table[column][index] = pduString(pdu)
		}
		indexes[index] = struct{}{}
	}

	sorted := make([]string, 0, len(indexes))
	for idx := range indexes {
		sorted = append(sorted, idx)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, errA := strconv.Atoi(sorted[i])
		b, errB := strconv.Atoi(sorted[j])
		if errA != nil || errB != nil {
			return sorted[i] < sorted[j]
		}
		return a < b
	})

	records := make([]datarow.Record, 0, len(sorted))
	for _, idx := range sorted {
		rec := datarow.NewRecord(idx)
		for _, col := range interfaceColumns {
			if v, ok := table[col.column][idx]; ok {
				rec.Set(col.name, v)
			}
		}
		records = append(records, *rec)
	}
	return records, nil
}

func normalizeOID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		return "." + oid
	}
	return oid
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b)
		}
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		if s, ok := pdu.Value.(string); ok {
			return s
		}
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return ""
	default:
		return gosnmp.ToBigInt(pdu.Value).String()
	}
	return fmt.Sprint(pdu.Value)
}

func physAddress(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) == 0 {
		return ""
	}
	return net.HardwareAddr(b).String()
}
