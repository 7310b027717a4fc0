package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetFarmABI returns the read-only subset of the liquidity-mining farm ABI:
// the deposited NFT listing per user and the per (nftId, pid) user info.
func GetFarmABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"internalType": "address", "name": "user", "type": "address"}],
			"name": "getDepositedNFTs",
			"outputs": [{"internalType": "uint256[]", "name": "listNFTs", "type": "uint256[]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"internalType": "uint256", "name": "nftId", "type": "uint256"},
				{"internalType": "uint256", "name": "pId", "type": "uint256"}
			],
			"name": "getUserInfo",
			"outputs": [
				{"internalType": "uint256", "name": "liquidity", "type": "uint256"},
				{"internalType": "uint256[]", "name": "rewardPending", "type": "uint256[]"},
				{"internalType": "uint256[]", "name": "rewardLast", "type": "uint256[]"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "rewardLocker",
			"outputs": [{"internalType": "address", "name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
