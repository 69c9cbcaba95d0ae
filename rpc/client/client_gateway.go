package client

import (
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// NewRPCGateway creates a new RPC gateway client
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a gateway.IGateway and an error
func NewRPCGateway(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (gateway.IGateway, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC gateway
	g := rpcGateway{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC gateway
	return &g, nil
}

type rpcGateway struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the gateway package in interface.go)
// --------------------------------------------------------------------------

func (g *rpcGateway) GetTableNames() ([][]byte, error) {
	resp, err := g.invoke(common.NewGetTableNamesRequest())
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *rpcGateway) GetTableRegions(table []byte) ([]store.RegionInfo, error) {
	resp, err := g.invoke(common.NewGetTableRegionsRequest(table))
	if err != nil {
		return nil, err
	}
	return resp.Regions, nil
}

func (g *rpcGateway) GetColumnDescriptors(table []byte) ([]store.ColumnDescriptor, error) {
	resp, err := g.invoke(common.NewGetColumnDescriptorsRequest(table))
	if err != nil {
		return nil, err
	}
	return resp.Families, nil
}

func (g *rpcGateway) Get(table, row, column []byte) ([]byte, error) {
	resp, err := g.invoke(common.NewGetRequest(table, row, column))
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (g *rpcGateway) GetVer(table, row, column []byte, numVersions int32) ([][]byte, error) {
	resp, err := g.invoke(common.NewGetVerRequest(table, row, column, numVersions))
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *rpcGateway) GetVerTs(table, row, column []byte, ts uint64, numVersions int32) ([][]byte, error) {
	resp, err := g.invoke(common.NewGetVerTsRequest(table, row, column, ts, numVersions))
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *rpcGateway) GetRow(table, row []byte) (store.RowResult, error) {
	return g.rowRequest(common.NewGetRowRequest(table, row))
}

func (g *rpcGateway) GetRowTs(table, row []byte, ts uint64) (store.RowResult, error) {
	return g.rowRequest(common.NewGetRowTsRequest(table, row, ts))
}

func (g *rpcGateway) Put(table, row, column, value []byte) error {
	_, err := g.invoke(common.NewPutRequest(table, row, column, value))
	return err
}

func (g *rpcGateway) DeleteAll(table, row, column []byte) error {
	_, err := g.invoke(common.NewDeleteAllRequest(table, row, column))
	return err
}

func (g *rpcGateway) DeleteAllTs(table, row, column []byte, ts uint64) error {
	_, err := g.invoke(common.NewDeleteAllTsRequest(table, row, column, ts))
	return err
}

func (g *rpcGateway) DeleteAllRow(table, row []byte) error {
	_, err := g.invoke(common.NewDeleteAllRowRequest(table, row))
	return err
}

func (g *rpcGateway) DeleteAllRowTs(table, row []byte, ts uint64) error {
	_, err := g.invoke(common.NewDeleteAllRowTsRequest(table, row, ts))
	return err
}

func (g *rpcGateway) MutateRow(table, row []byte, mutations []store.Mutation) error {
	_, err := g.invoke(common.NewMutateRowRequest(table, row, mutations))
	return err
}

func (g *rpcGateway) MutateRowTs(table, row []byte, mutations []store.Mutation, ts uint64) error {
	_, err := g.invoke(common.NewMutateRowTsRequest(table, row, mutations, ts))
	return err
}

func (g *rpcGateway) CreateTable(table []byte, families []store.ColumnDescriptor) error {
	_, err := g.invoke(common.NewCreateTableRequest(table, families))
	return err
}

func (g *rpcGateway) DeleteTable(table []byte) error {
	_, err := g.invoke(common.NewDeleteTableRequest(table))
	return err
}

func (g *rpcGateway) ScannerOpen(table, startRow []byte, columns [][]byte) (gateway.ScannerID, error) {
	return g.scannerRequest(common.NewScannerOpenRequest(table, startRow, columns))
}

func (g *rpcGateway) ScannerOpenWithStop(table, startRow, stopRow []byte, columns [][]byte) (gateway.ScannerID, error) {
	return g.scannerRequest(common.NewScannerOpenWithStopRequest(table, startRow, stopRow, columns))
}

func (g *rpcGateway) ScannerOpenTs(table, startRow []byte, columns [][]byte, ts uint64) (gateway.ScannerID, error) {
	return g.scannerRequest(common.NewScannerOpenTsRequest(table, startRow, columns, ts))
}

func (g *rpcGateway) ScannerOpenWithStopTs(table, startRow, stopRow []byte, columns [][]byte, ts uint64) (gateway.ScannerID, error) {
	return g.scannerRequest(common.NewScannerOpenWithStopTsRequest(table, startRow, stopRow, columns, ts))
}

func (g *rpcGateway) ScannerGet(id gateway.ScannerID) (store.RowResult, error) {
	return g.rowRequest(common.NewScannerGetRequest(uint32(id)))
}

func (g *rpcGateway) ScannerClose(id gateway.ScannerID) error {
	_, err := g.invoke(common.NewScannerCloseRequest(uint32(id)))
	return err
}

// Close closes the transport. Scanners opened through this client stay open on
// the server until they are closed explicitly or the server shuts down.
func (g *rpcGateway) Close() error {
	return g.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (g *rpcGateway) rowRequest(req *common.Message) (store.RowResult, error) {
	resp, err := g.invoke(req)
	if err != nil {
		return store.RowResult{}, err
	}
	return store.RowResult{Row: resp.Row, Cells: resp.Cells}, nil
}

func (g *rpcGateway) scannerRequest(req *common.Message) (gateway.ScannerID, error) {
	resp, err := g.invoke(req)
	if err != nil {
		return 0, err
	}
	return gateway.ScannerID(resp.ScannerID), nil
}
