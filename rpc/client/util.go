package client

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request via invokeRPCRequest using the settings of the adapter
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	return invokeRPCRequest(a.shardId, req, a.transport, a.serializer)
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and a *gateway.Error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, gateway.NewError(gateway.CategoryIOError, fmt.Sprintf("failed to serialize request: %s", err))
	}

	// Send the request
	respBytes, err := transport.Send(shardId, reqBytes)
	if err != nil {
		Logger.Debugf("%s on shard %d failed: %v", req.MsgType, shardId, err)
		return nil, gateway.NewError(gateway.CategoryIOError, err.Error())
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, gateway.NewError(gateway.CategoryIOError, fmt.Sprintf("failed to deserialize response: %s", err))
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" || resp.ErrCode != common.ErrCNone {
		return nil, responseError(resp)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, gateway.NewError(gateway.CategoryIOError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	// Return the response
	return resp, nil
}

// responseError rebuilds the gateway error carried by an error response.
// Unknown categories are reported as IOError.
func responseError(resp *common.Message) error {
	category := gateway.Category(resp.ErrCode)
	if !category.Valid() {
		category = gateway.CategoryIOError
	}
	return gateway.NewError(category, resp.Err)
}
