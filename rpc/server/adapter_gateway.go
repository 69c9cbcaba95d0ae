package server

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewGatewayServerAdapter creates the adapter that maps messages onto gateway calls
func NewGatewayServerAdapter() IRPCServerAdapter {
	return &gatewayServerAdapterImpl{}
}

type gatewayServerAdapterImpl struct{}

func (adapter *gatewayServerAdapterImpl) Handle(req *common.Message, gw gateway.IGateway) *common.Message {
	// Check for nil gateway
	if gw == nil {
		return common.NewErrorResponse(common.ErrCIOError, "handler: gateway is nil")
	}

	// Handle different message types
	switch req.MsgType {

	// schema introspection

	case common.MsgTGetTableNames:
		names, err := gw.GetTableNames()
		return response(req.MsgType, err, func(resp *common.Message) { resp.Values = names })
	case common.MsgTGetTableRegions:
		regions, err := gw.GetTableRegions(req.Table)
		return response(req.MsgType, err, func(resp *common.Message) { resp.Regions = regions })
	case common.MsgTGetColumnDescriptors:
		families, err := gw.GetColumnDescriptors(req.Table)
		return response(req.MsgType, err, func(resp *common.Message) { resp.Families = families })

	// reads

	case common.MsgTGet:
		value, err := gw.Get(req.Table, req.Row, req.Column)
		return response(req.MsgType, err, func(resp *common.Message) { resp.Value = nonNil(value) })
	case common.MsgTGetVer:
		values, err := gw.GetVer(req.Table, req.Row, req.Column, req.NumVersions)
		return response(req.MsgType, err, func(resp *common.Message) { resp.Values = values })
	case common.MsgTGetVerTs:
		values, err := gw.GetVerTs(req.Table, req.Row, req.Column, req.Timestamp, req.NumVersions)
		return response(req.MsgType, err, func(resp *common.Message) { resp.Values = values })
	case common.MsgTGetRow:
		row, err := gw.GetRow(req.Table, req.Row)
		return rowResponse(req.MsgType, row, err)
	case common.MsgTGetRowTs:
		row, err := gw.GetRowTs(req.Table, req.Row, req.Timestamp)
		return rowResponse(req.MsgType, row, err)

	// writes

	case common.MsgTPut:
		return response(req.MsgType, gw.Put(req.Table, req.Row, req.Column, req.Value), nil)
	case common.MsgTDeleteAll:
		return response(req.MsgType, gw.DeleteAll(req.Table, req.Row, req.Column), nil)
	case common.MsgTDeleteAllTs:
		return response(req.MsgType, gw.DeleteAllTs(req.Table, req.Row, req.Column, req.Timestamp), nil)
	case common.MsgTDeleteAllRow:
		return response(req.MsgType, gw.DeleteAllRow(req.Table, req.Row), nil)
	case common.MsgTDeleteAllRowTs:
		return response(req.MsgType, gw.DeleteAllRowTs(req.Table, req.Row, req.Timestamp), nil)
	case common.MsgTMutateRow:
		return response(req.MsgType, gw.MutateRow(req.Table, req.Row, req.Mutations), nil)
	case common.MsgTMutateRowTs:
		return response(req.MsgType, gw.MutateRowTs(req.Table, req.Row, req.Mutations, req.Timestamp), nil)

	// schema mutation

	case common.MsgTCreateTable:
		return response(req.MsgType, gw.CreateTable(req.Table, req.Families), nil)
	case common.MsgTDeleteTable:
		return response(req.MsgType, gw.DeleteTable(req.Table), nil)

	// scanners

	case common.MsgTScannerOpen:
		id, err := gw.ScannerOpen(req.Table, req.Row, req.Columns)
		return scannerResponse(req.MsgType, id, err)
	case common.MsgTScannerOpenWithStop:
		id, err := gw.ScannerOpenWithStop(req.Table, req.Row, req.StopRow, req.Columns)
		return scannerResponse(req.MsgType, id, err)
	case common.MsgTScannerOpenTs:
		id, err := gw.ScannerOpenTs(req.Table, req.Row, req.Columns, req.Timestamp)
		return scannerResponse(req.MsgType, id, err)
	case common.MsgTScannerOpenWithStopTs:
		id, err := gw.ScannerOpenWithStopTs(req.Table, req.Row, req.StopRow, req.Columns, req.Timestamp)
		return scannerResponse(req.MsgType, id, err)
	case common.MsgTScannerGet:
		row, err := gw.ScannerGet(gateway.ScannerID(req.ScannerID))
		return rowResponse(req.MsgType, row, err)
	case common.MsgTScannerClose:
		return response(req.MsgType, gw.ScannerClose(gateway.ScannerID(req.ScannerID)), nil)

	default:
		return common.NewErrorResponse(
			common.ErrCIllegalArgument,
			fmt.Sprintf("unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// response builds the response for a request type. If err is set, an error
// response carrying the category of the error is returned instead.
func response(t common.MessageType, err error, fill func(resp *common.Message)) *common.Message {
	if err != nil {
		return ErrorResponse(err)
	}
	resp := common.NewResponse(t)
	if fill != nil {
		fill(resp)
	}
	return resp
}

func rowResponse(t common.MessageType, row store.RowResult, err error) *common.Message {
	return response(t, err, func(resp *common.Message) {
		resp.Row = nonNil(row.Row)
		resp.Cells = row.Cells
	})
}

func scannerResponse(t common.MessageType, id gateway.ScannerID, err error) *common.Message {
	return response(t, err, func(resp *common.Message) { resp.ScannerID = uint32(id) })
}

// ErrorResponse converts an error into an error response. Errors that are not
// gateway errors are reported as IOError.
func ErrorResponse(err error) *common.Message {
	translated := gateway.Translate(err)
	return common.NewErrorResponse(
		common.ErrorCode(gateway.CategoryOf(translated)),
		messageOf(translated),
	)
}

// messageOf returns the message of a gateway error without the category prefix
func messageOf(err error) string {
	if gwErr, ok := err.(*gateway.Error); ok {
		return gwErr.Message
	}
	return err.Error()
}

// nonNil keeps empty values distinguishable from absent fields on the wire
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
