package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/core/service"
)

const (
	ServiceName = "lending.v1.LendingService"

	// CodecName is the content subtype clients must request.
	CodecName = "json"
)

// jsonCodec lets the service speak gRPC with the same wire types as the
// HTTP API instead of generated protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// LendingServer is the gRPC surface.
type LendingServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*OrderListResponse, error)
	TransitionOrder(context.Context, *TransitionRequest) (*OrderResponse, error)
	BulkTransitionOrders(context.Context, *BulkTransitionRequest) (*BulkResultResponse, error)
	RequestReturn(context.Context, *ReturnRequest) (*OrderResponse, error)
	SubmitRefundDetails(context.Context, *RefundDetailsRequest) (*OrderResponse, error)
	RequestEntitlement(context.Context, *EntitlementRequest) (*EntitlementResponse, error)
	CheckAccess(context.Context, *EntitlementRequest) (*AccessResponse, error)
	QuotaStatus(context.Context, *UserRequest) (*QuotaResponse, error)
	SaveProgress(context.Context, *ProgressRequest) (*EntitlementResponse, error)
	SweepExpiredEntitlements(context.Context, *Empty) (*SweepResponse, error)
}

// ServiceDesc is registered by RegisterLendingServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceOrder", LendingServer.PlaceOrder),
		unary("GetOrder", LendingServer.GetOrder),
		unary("ListOrders", LendingServer.ListOrders),
		unary("TransitionOrder", LendingServer.TransitionOrder),
		unary("BulkTransitionOrders", LendingServer.BulkTransitionOrders),
		unary("RequestReturn", LendingServer.RequestReturn),
		unary("SubmitRefundDetails", LendingServer.SubmitRefundDetails),
		unary("RequestEntitlement", LendingServer.RequestEntitlement),
		unary("CheckAccess", LendingServer.CheckAccess),
		unary("QuotaStatus", LendingServer.QuotaStatus),
		unary("SaveProgress", LendingServer.SaveProgress),
		unary("SweepExpiredEntitlements", LendingServer.SweepExpiredEntitlements),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLendingServer(s grpc.ServiceRegistrar, srv LendingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(LendingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			server := srv.(LendingServer)
			if interceptor == nil {
				return call(server, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	svc    Services
	logger zerolog.Logger
}

var _ LendingServer = (*GRPCHandler)(nil)

func NewGRPCHandler(svc Services, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: logger.With().Str("component", "grpc").Logger()}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	order, err := h.svc.Orders.PlaceOrder(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderResponse(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	order, err := h.svc.Orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderResponse(order), nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*OrderListResponse, error) {
	orders, err := h.svc.Orders.ListOrders(ctx, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderList(orders), nil
}

func (h *GRPCHandler) TransitionOrder(ctx context.Context, req *TransitionRequest) (*OrderResponse, error) {
	order, err := h.svc.Orders.TransitionOrder(ctx, req.OrderID, domain.OrderStatus(req.Target), req.ActorID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderResponse(order), nil
}

func (h *GRPCHandler) BulkTransitionOrders(ctx context.Context, req *BulkTransitionRequest) (*BulkResultResponse, error) {
	result, err := h.svc.Orders.BulkTransitionOrders(ctx, req.OrderIDs, domain.OrderStatus(req.Target), req.ActorID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toBulkResponse(result), nil
}

func (h *GRPCHandler) RequestReturn(ctx context.Context, req *ReturnRequest) (*OrderResponse, error) {
	order, err := h.svc.Orders.RequestReturn(ctx, req.OrderID, req.UserID, req.Reason)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderResponse(order), nil
}

func (h *GRPCHandler) SubmitRefundDetails(ctx context.Context, req *RefundDetailsRequest) (*OrderResponse, error) {
	order, err := h.svc.Orders.SubmitRefundDetails(ctx, req.OrderID, req.UserID, req.toDomain())
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toOrderResponse(order), nil
}

func (h *GRPCHandler) RequestEntitlement(ctx context.Context, req *EntitlementRequest) (*EntitlementResponse, error) {
	e, err := h.svc.Quota.RequestEntitlement(ctx, req.UserID, req.TitleID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toEntitlementResponse(e), nil
}

func (h *GRPCHandler) CheckAccess(ctx context.Context, req *EntitlementRequest) (*AccessResponse, error) {
	d, err := h.svc.Access.CheckAccess(ctx, req.UserID, req.TitleID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &AccessResponse{Authorized: d.Authorized, Reason: string(d.Reason)}, nil
}

func (h *GRPCHandler) QuotaStatus(ctx context.Context, req *UserRequest) (*QuotaResponse, error) {
	st, err := h.svc.Quota.QuotaStatus(ctx, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &QuotaResponse{CycleStart: st.CycleStart, Used: st.Used, Limit: st.Limit, Remaining: st.Remaining}, nil
}

func (h *GRPCHandler) SaveProgress(ctx context.Context, req *ProgressRequest) (*EntitlementResponse, error) {
	e, err := h.svc.Quota.SaveProgress(ctx, req.UserID, req.TitleID, service.ProgressUpdate{
		Cursor:    req.Cursor,
		Bookmarks: req.Bookmarks,
		Completed: req.Completed,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toEntitlementResponse(e), nil
}

func (h *GRPCHandler) SweepExpiredEntitlements(ctx context.Context, _ *Empty) (*SweepResponse, error) {
	result, err := h.svc.Sweeper.SweepExpiredEntitlements(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &SweepResponse{ExpiredCount: result.ExpiredCount}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCode(err)
	resp := toErrorResponse(err)
	if service.Classify(err) == service.KindFatal {
		h.logger.Error().Err(err).Msg("rpc failed")
	}
	return status.Error(code, resp.Message)
}
