package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// ResultString names a result code, with its description when extended is set.
func ResultString(result vk.Result, extended bool) string {
	switch result {
	case vk.Success:
		return conditional(extended, "VK_SUCCESS Command successfully completed", "VK_SUCCESS")
	case vk.NotReady:
		return conditional(extended, "VK_NOT_READY A fence or query has not yet completed", "VK_NOT_READY")
	case vk.Timeout:
		return conditional(extended, "VK_TIMEOUT A wait operation has not completed in the specified time", "VK_TIMEOUT")
	case vk.Incomplete:
		return conditional(extended, "VK_INCOMPLETE A return array was too small for the result", "VK_INCOMPLETE")
	case vk.ErrorOutOfHostMemory:
		return conditional(extended, "VK_ERROR_OUT_OF_HOST_MEMORY A host memory allocation has failed.", "VK_ERROR_OUT_OF_HOST_MEMORY")
	case vk.ErrorOutOfDeviceMemory:
		return conditional(extended, "VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed.", "VK_ERROR_OUT_OF_DEVICE_MEMORY")
	case vk.ErrorDeviceLost:
		return conditional(extended, "VK_ERROR_DEVICE_LOST The logical or physical device has been lost.", "VK_ERROR_DEVICE_LOST")
	case vk.ErrorMemoryMapFailed:
		return conditional(extended, "VK_ERROR_MEMORY_MAP_FAILED Mapping of a memory object has failed.", "VK_ERROR_MEMORY_MAP_FAILED")
	case vk.ErrorTooManyObjects:
		return conditional(extended, "VK_ERROR_TOO_MANY_OBJECTS Too many objects of the type have already been created.", "VK_ERROR_TOO_MANY_OBJECTS")
	case vk.ErrorInvalidDeviceAddress:
		return conditional(extended, "VK_ERROR_INVALID_DEVICE_ADDRESS_EXT A buffer creation failed because the requested address is not available.", "VK_ERROR_INVALID_DEVICE_ADDRESS_EXT")
	case vk.ErrorUnknown:
		return conditional(extended, "VK_ERROR_UNKNOWN An unknown error has occurred.", "VK_ERROR_UNKNOWN")
	default:
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
}

// ResultIsSuccess reports whether result is a success code. Every error
// code is negative.
func ResultIsSuccess(result vk.Result) bool {
	return result >= vk.Success
}

// ResultError is a failed vulkan call.
type ResultError struct {
	Call   string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return e.Call + ": " + ResultString(e.Result, true)
}

func check(call string, result vk.Result) error {
	if ResultIsSuccess(result) {
		return nil
	}
	return &ResultError{Call: call, Result: result}
}

func conditional(condition bool, res1, res2 string) string {
	if condition {
		return res1
	}
	return res2
}
