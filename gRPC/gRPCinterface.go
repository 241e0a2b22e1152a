package proto

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/manager"
	"CourtVision/video"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Pipeline is the live analysis state shared by the outer surfaces.
// *manager.Manager satisfies it.
type Pipeline interface {
	Analyze(ctx context.Context, frame iface.Frame) (iface.FrameResult, error)
	Status() manager.Status
	Reset()
}

// RequestCounter is satisfied by *monitor.Metrics.
type RequestCounter interface {
	RequestServed(surface string)
}

type JobPackage struct {
	ctx    context.Context
	image  []byte
	Result chan jobResult
}

type jobResult struct {
	Data iface.FrameResult
	Err  error
}

// Server implements AnalysisServer. Decoding and analysis run on a fixed
// set of workers fed by JobQueue.
type Server struct {
	pipeline Pipeline
	counter  RequestCounter
	log      *zap.Logger

	// OnResult, when set, receives every result produced through this server.
	OnResult func(iface.FrameResult)

	JobQueue  chan JobPackage
	closeOnce sync.Once
}

func NewServer(p Pipeline, counter RequestCounter, workerNum int) *Server {
	if workerNum <= 0 {
		workerNum = 1
	}
	s := &Server{
		pipeline: p,
		counter:  counter,
		log:      logger.Named("grpc"),
		JobQueue: make(chan JobPackage, workerNum),
	}
	s.StartWorker(workerNum)
	return s
}

func (s *Server) StartWorker(workerNum int) {
	for i := 0; i < workerNum; i++ {
		go s.runWorker(i)
	}
}

func (s *Server) runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(fmt.Sprintf("Worker %d panic: %v. Restarting in 1s...", workerID, r))
			time.Sleep(1 * time.Second)
			go s.runWorker(workerID)
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.log.Info(fmt.Sprintf("---Worker %d created", workerID))
	for job := range s.JobQueue {
		res, err := s.process(job)
		job.Result <- jobResult{Data: res, Err: err}
	}
}

func (s *Server) process(job JobPackage) (res iface.FrameResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during analysis: %v", iface.ErrInference, r)
		}
	}()
	frame, err := video.DecodeImage(job.image, 0)
	if err != nil {
		return iface.FrameResult{}, err
	}
	return s.pipeline.Analyze(job.ctx, frame)
}

// Stop closes the job queue; workers exit once it is drained.
func (s *Server) Stop() {
	s.closeOnce.Do(func() { close(s.JobQueue) })
}

func (s *Server) served() {
	if s.counter != nil {
		s.counter.RequestServed("grpc")
	}
}

func (s *Server) Analyze(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	s.served()
	if len(req.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "image cannot be empty")
	}
	job := JobPackage{ctx: ctx, image: req.GetValue(), Result: make(chan jobResult, 1)}
	select {
	case s.JobQueue <- job:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	var out jobResult
	select {
	case out = <-job.Result:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if out.Err != nil {
		if errors.Is(out.Err, iface.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, out.Err.Error())
		}
		s.log.Error("analysis failed", zap.Error(out.Err))
		return nil, status.Error(codes.Internal, out.Err.Error())
	}
	if s.OnResult != nil {
		s.OnResult(out.Data)
	}
	return toStruct(out.Data)
}

func (s *Server) State(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.served()
	return toStruct(s.pipeline.Status())
}

func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.served()
	s.pipeline.Reset()
	s.log.Info("pipeline reset")
	return &emptypb.Empty{}, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// NewGRPCServer returns a grpc.Server with the analysis service registered.
func NewGRPCServer(srv AnalysisServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	RegisterAnalysisServiceServer(s, srv)
	return s
}

func StartGRPCServer(port int, srv AnalysisServer) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", addr, err)
	}
	s := NewGRPCServer(srv)
	log := logger.Named("grpc")
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil {
			log.Error("failed to serve gRPC server", zap.Error(err))
		}
	}()
	return s, nil
}
