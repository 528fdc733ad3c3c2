package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// votingDAOABI is the public surface of the ConfidentialVotingDAO contract.
const votingDAOABI = `[
  {"type":"function","name":"nextProposalId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"proposalExists","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getProposalPublic","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
    {"name":"ipfsHash","type":"bytes32"},
    {"name":"creator","type":"address"},
    {"name":"deadline","type":"uint64"},
    {"name":"revealed","type":"bool"},
    {"name":"decryptionPending","type":"bool"},
    {"name":"yes","type":"uint128"},
    {"name":"no","type":"uint128"}]},
  {"type":"function","name":"hasVoted","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"createProposal","stateMutability":"nonpayable","inputs":[{"name":"ipfsHash","type":"bytes32"},{"name":"durationSeconds","type":"uint64"}],"outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"encryptedChoice","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"requestReveal","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"ipfsHash","type":"bytes32","indexed":false},
    {"name":"deadline","type":"uint64","indexed":false}]},
  {"type":"event","name":"VoteCast","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"voter","type":"address","indexed":true}]},
  {"type":"event","name":"RevealRequested","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true}]}
]`

// EVMClient talks to the ConfidentialVotingDAO contract over an Ethereum RPC
// endpoint. Reads go through a bound contract; writes are signed with the
// session key and awaited until mined, since confirmation is the only success
// signal the engine trusts.
type EVMClient struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
}

// DialEVM connects to the RPC endpoint and binds the contract. The private
// key may be nil for a read-only client.
func DialEVM(ctx context.Context, endpoint string, contractAddr common.Address, key *ecdsa.PrivateKey) (*EVMClient, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger rpc endpoint required")
	}
	eth, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(votingDAOABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	return &EVMClient{
		eth:      eth,
		contract: bind.NewBoundContract(contractAddr, parsed, eth, eth, eth),
		abi:      parsed,
		address:  contractAddr,
		key:      key,
		chainID:  chainID,
	}, nil
}

func (c *EVMClient) Close() {
	c.eth.Close()
}

func (c *EVMClient) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (c *EVMClient) HasCode(ctx context.Context) (bool, error) {
	code, err := c.eth.CodeAt(ctx, c.address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (c *EVMClient) ProposalCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "nextProposalId"); err != nil {
		return 0, err
	}
	next, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected nextProposalId type %T", out[0])
	}
	return next.Uint64(), nil
}

func (c *EVMClient) Proposal(ctx context.Context, id uint64) (ProposalState, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getProposalPublic", new(big.Int).SetUint64(id))
	if err != nil {
		return ProposalState{}, err
	}
	if len(out) != 7 {
		return ProposalState{}, fmt.Errorf("getProposalPublic returned %d values", len(out))
	}
	state := ProposalState{
		Field:             out[0].([32]byte),
		Creator:           out[1].(common.Address),
		Deadline:          out[2].(uint64),
		Revealed:          out[3].(bool),
		DecryptionPending: out[4].(bool),
	}
	if yes, ok := out[5].(*big.Int); ok {
		state.Yes = yes.Uint64()
	}
	if no, ok := out[6].(*big.Int); ok {
		state.No = no.Uint64()
	}
	return state, nil
}

func (c *EVMClient) HasVoted(ctx context.Context, id uint64, voter common.Address) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasVoted", new(big.Int).SetUint64(id), voter)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *EVMClient) CreateProposal(ctx context.Context, field [32]byte, durationSeconds uint64) (uint64, common.Hash, error) {
	receipt, err := c.transact(ctx, "createProposal", field, durationSeconds)
	if err != nil {
		return 0, common.Hash{}, err
	}
	id, err := c.proposalIDFromReceipt(receipt)
	if err != nil {
		return 0, receipt.TxHash, err
	}
	return id, receipt.TxHash, nil
}

func (c *EVMClient) Vote(ctx context.Context, id uint64, handle [32]byte, proof []byte) (common.Hash, error) {
	receipt, err := c.transact(ctx, "vote", new(big.Int).SetUint64(id), handle, proof)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func (c *EVMClient) RequestReveal(ctx context.Context, id uint64) (common.Hash, error) {
	receipt, err := c.transact(ctx, "requestReveal", new(big.Int).SetUint64(id))
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// transact signs, submits and waits for one contract call. Known revert
// reasons come back as *Rejection.
func (c *EVMClient) transact(ctx context.Context, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	if c.key == nil {
		return nil, fmt.Errorf("ledger client is read-only: no signing key configured")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			return nil, rej
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: wait mined: %w", method, err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s: transaction %s reverted", method, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *EVMClient) proposalIDFromReceipt(receipt *gethtypes.Receipt) (uint64, error) {
	created := c.abi.Events["ProposalCreated"]
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != c.address {
			continue
		}
		if len(lg.Topics) < 2 || lg.Topics[0] != created.ID {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), nil
	}
	return 0, fmt.Errorf("no ProposalCreated event in receipt %s", receipt.TxHash.Hex())
}
