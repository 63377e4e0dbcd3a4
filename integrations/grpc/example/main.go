package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/aponysus/courier/fault"
	integration "github.com/aponysus/courier/integrations/grpc"
	"github.com/aponysus/courier/policy"
	"github.com/aponysus/courier/retry"
)

func main() {
	pol, err := retry.NewBuilder().
		WithDelay(time.Millisecond, 50).
		WithMaxRetries(3).
		Handle(fault.KindTransient, fault.KindThrottled).
		Build()
	if err != nil {
		log.Fatalf("retry policy: %v", err)
	}
	enforcer := policy.NewBuilder[integration.Call]().
		WithName("greeter").
		WithRetry(pol).
		Build()

	interceptor := integration.UnaryClientInterceptor(enforcer)

	conn, err := grpc.NewClient("localhost:50051",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(interceptor),
	)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()

	fmt.Println("gRPC client initialized. (This example requires a running server to execute real calls).")
	fmt.Println("Simulating call to /Greeter/SayHello...")

	attempts := 0
	mockInvoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		attempts++
		fmt.Printf(" - Attempt %d...", attempts)
		if attempts < 3 {
			fmt.Println(" Failed (Unavailable)")
			return status.Error(codes.Unavailable, "transient failure")
		}
		fmt.Println(" Success!")
		return nil
	}

	err = interceptor(context.Background(), "/Greeter/SayHello", "req", "resp", conn, mockInvoker)
	if err != nil {
		fmt.Printf("Final result: Failed (%v)\n", err)
	} else {
		fmt.Println("Final result: Success")
	}
}
