package chatapi

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "housingchat.v1.ChatService"

	ChatService_FindOrCreateChat_FullMethodName = "/housingchat.v1.ChatService/FindOrCreateChat"
	ChatService_ListChatsForUser_FullMethodName = "/housingchat.v1.ChatService/ListChatsForUser"
	ChatService_SubmitMessage_FullMethodName    = "/housingchat.v1.ChatService/SubmitMessage"
	ChatService_ListMessages_FullMethodName     = "/housingchat.v1.ChatService/ListMessages"
	ChatService_RelayMessage_FullMethodName     = "/housingchat.v1.ChatService/RelayMessage"
	ChatService_GetPresence_FullMethodName      = "/housingchat.v1.ChatService/GetPresence"
	ChatService_SearchMessages_FullMethodName   = "/housingchat.v1.ChatService/SearchMessages"
	ChatService_Connect_FullMethodName          = "/housingchat.v1.ChatService/Connect"
)

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	FindOrCreateChat(context.Context, *FindOrCreateChatRequest) (*ChatResponse, error)
	ListChatsForUser(context.Context, *ListChatsForUserRequest) (*ListChatsResponse, error)
	SubmitMessage(context.Context, *SubmitMessageRequest) (*MessageResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*MessagesResponse, error)
	RelayMessage(context.Context, *RelayMessageRequest) (*MessageResponse, error)
	GetPresence(context.Context, *GetPresenceRequest) (*GetPresenceResponse, error)
	SearchMessages(context.Context, *SearchMessagesRequest) (*MessagesResponse, error)
	Connect(*ConnectRequest, ChatService_ConnectServer) error
}

type ChatService_ConnectServer interface {
	Send(*ChatEvent) error
	grpc.ServerStream
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

// unary builds the method handler shared by every unary call.
func unary[Req any, Resp any](fullMethod string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChatServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	m := new(ConnectRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Connect(m, &chatServiceConnectServer{stream})
}

type chatServiceConnectServer struct {
	grpc.ServerStream
}

func (x *chatServiceConnectServer) Send(m *ChatEvent) error {
	return x.ServerStream.SendMsg(m)
}

var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "FindOrCreateChat",
			Handler:    unary(ChatService_FindOrCreateChat_FullMethodName, ChatServiceServer.FindOrCreateChat),
		},
		{
			MethodName: "ListChatsForUser",
			Handler:    unary(ChatService_ListChatsForUser_FullMethodName, ChatServiceServer.ListChatsForUser),
		},
		{
			MethodName: "SubmitMessage",
			Handler:    unary(ChatService_SubmitMessage_FullMethodName, ChatServiceServer.SubmitMessage),
		},
		{
			MethodName: "ListMessages",
			Handler:    unary(ChatService_ListMessages_FullMethodName, ChatServiceServer.ListMessages),
		},
		{
			MethodName: "RelayMessage",
			Handler:    unary(ChatService_RelayMessage_FullMethodName, ChatServiceServer.RelayMessage),
		},
		{
			MethodName: "GetPresence",
			Handler:    unary(ChatService_GetPresence_FullMethodName, ChatServiceServer.GetPresence),
		},
		{
			MethodName: "SearchMessages",
			Handler:    unary(ChatService_SearchMessages_FullMethodName, ChatServiceServer.SearchMessages),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
		},
	},
	Metadata: "housingchat/v1/chat.cbor",
}

// ChatServiceClient is the client API for ChatService. Every call is sent with the CBOR codec.
type ChatServiceClient interface {
	FindOrCreateChat(ctx context.Context, in *FindOrCreateChatRequest, opts ...grpc.CallOption) (*ChatResponse, error)
	ListChatsForUser(ctx context.Context, in *ListChatsForUserRequest, opts ...grpc.CallOption) (*ListChatsResponse, error)
	SubmitMessage(ctx context.Context, in *SubmitMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error)
	ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error)
	RelayMessage(ctx context.Context, in *RelayMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error)
	GetPresence(ctx context.Context, in *GetPresenceRequest, opts ...grpc.CallOption) (*GetPresenceResponse, error)
	SearchMessages(ctx context.Context, in *SearchMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error)
	Connect(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (ChatService_ConnectClient, error)
}

type ChatService_ConnectClient interface {
	Recv() (*ChatEvent, error)
	grpc.ClientStream
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatServiceClient) FindOrCreateChat(ctx context.Context, in *FindOrCreateChatRequest, opts ...grpc.CallOption) (*ChatResponse, error) {
	return invoke[ChatResponse](ctx, c.cc, ChatService_FindOrCreateChat_FullMethodName, in, opts)
}

func (c *chatServiceClient) ListChatsForUser(ctx context.Context, in *ListChatsForUserRequest, opts ...grpc.CallOption) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c.cc, ChatService_ListChatsForUser_FullMethodName, in, opts)
}

func (c *chatServiceClient) SubmitMessage(ctx context.Context, in *SubmitMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, ChatService_SubmitMessage_FullMethodName, in, opts)
}

func (c *chatServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatService_ListMessages_FullMethodName, in, opts)
}

func (c *chatServiceClient) RelayMessage(ctx context.Context, in *RelayMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, ChatService_RelayMessage_FullMethodName, in, opts)
}

func (c *chatServiceClient) GetPresence(ctx context.Context, in *GetPresenceRequest, opts ...grpc.CallOption) (*GetPresenceResponse, error) {
	return invoke[GetPresenceResponse](ctx, c.cc, ChatService_GetPresence_FullMethodName, in, opts)
}

func (c *chatServiceClient) SearchMessages(ctx context.Context, in *SearchMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatService_SearchMessages_FullMethodName, in, opts)
}

func (c *chatServiceClient) Connect(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (ChatService_ConnectClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[0], ChatService_Connect_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &chatServiceConnectClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type chatServiceConnectClient struct {
	grpc.ClientStream
}

func (x *chatServiceConnectClient) Recv() (*ChatEvent, error) {
	m := new(ChatEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
