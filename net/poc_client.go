package net

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

const (
	entropyMethod        = "/poc_lora.PocLora/PocEntropy"
	beaconReportMethod   = "/poc_lora.PocLora/ReportBeacon"
	witnessReportMethod  = "/poc_lora.PocLora/ReportWitness"
)

// PoCClient talks to the poc_lora service: fetching server entropy and
// submitting signed beacon/witness reports.
type PoCClient struct {
	client *Client
	uri    key.KeyedUri
	kp     *key.Keypair
}

// NewPoCClient builds a PoCClient bound to the given router-service uri.
func NewPoCClient(c *Client, uri key.KeyedUri, kp *key.Keypair) *PoCClient {
	return &PoCClient{client: c, uri: uri, kp: kp}
}

// RemoteEntropy fetches the server-contributed entropy half from the
// router, satisfying beacon.EntropySource.
func (p *PoCClient) RemoteEntropy(ctx context.Context, kp *key.Keypair) (entropy.Entropy, error) {
	cc, err := p.client.conn(ctx, p.uri)
	if err != nil {
		return entropy.Entropy{}, err
	}
	req := &proto.PoCEntropyReqV1{Gateway: kp.Public}
	req.Signature = kp.Sign(mustCanonical(req))

	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	var res proto.PoCEntropyResV1
	if err := cc.Invoke(callCtx, entropyMethod, req, &res, grpc.CallContentSubtype(codecName)); err != nil {
		return entropy.Entropy{}, fmt.Errorf("poc entropy rpc: %w", err)
	}
	return entropy.Entropy{
		Version:   res.Version,
		Data:      res.Data,
		Timestamp: time.Unix(0, res.Timestamp),
	}, nil
}

// LocalEntropy draws 32 bytes from the OS CSPRNG and tags them with the
// current time, version 1.
func (p *PoCClient) LocalEntropy() entropy.Entropy {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return entropy.Entropy{Version: entropy.Version1, Data: buf, Timestamp: time.Now()}
}

// SubmitBeaconReport submits a signed beacon report.
func (p *PoCClient) SubmitBeaconReport(ctx context.Context, r *proto.LoraBeaconReportReqV1) error {
	cc, err := p.client.conn(ctx, p.uri)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	var empty struct{}
	return cc.Invoke(callCtx, beaconReportMethod, r, &empty, grpc.CallContentSubtype(codecName))
}

// SubmitWitnessReport submits a signed witness report.
func (p *PoCClient) SubmitWitnessReport(ctx context.Context, r *proto.LoraWitnessReportReqV1) error {
	cc, err := p.client.conn(ctx, p.uri)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	var empty struct{}
	return cc.Invoke(callCtx, witnessReportMethod, r, &empty, grpc.CallContentSubtype(codecName))
}
